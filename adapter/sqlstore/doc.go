// Package sqlstore implements adapter.DatabaseAdapter on gorm.
//
// Every memory table shares one "memories" relation keyed by (id, type).
// Knowledge items and their chunks share "knowledge"; chunk ids carry the
// parent id as prefix, so removing a document is a LIKE prefix delete.
//
// Vectors are written in pgvector's text form. On postgres the column is a
// native vector and similarity search runs in SQL with the cosine distance
// operator (<=>). On mysql and sqlite the same text is stored in a text
// column and cosine similarity is computed in process after filtering.
package sqlstore
