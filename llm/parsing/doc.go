// Package parsing turns free-form model output into structured values.
//
// JSON extraction runs an explicit chain: a fenced ```json block, then the
// first balanced brace span, then a key/value attribute scan. Each candidate is
// tried as strict JSON first and then through jsonrepair.
package parsing
