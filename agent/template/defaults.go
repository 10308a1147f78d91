package template

const messageCompletionFooter = "\nResponse format should be formatted in a JSON block like this:\n" +
	"```json\n" +
	`{ "user": "{{agentName}}", "text": "<string>", "action": "<string>" }` +
	"\n```\n" +
	"The \"action\" field should be one of the options in [Available Actions] and the \"text\" field should be the response you want to send.\n"

const shouldRespondFooter = "The available options are [RESPOND], [IGNORE], or [STOP]. Choose the most appropriate option.\n" +
	"If {{agentName}} is talking too much, you can choose [IGNORE]\n\n" +
	"Your response must include one of the options."

const messageHandlerTemplate = `# Action Examples
{{actionExamples}}
(Action examples are for reference only. Do not use the information from them in your response.)

# Knowledge
{{knowledge}}

# Task: Generate dialog and actions for the character {{agentName}}.
About {{agentName}}:
{{bio}}
{{lore}}

{{providers}}

{{attachments}}

{{messageDirections}}

{{recentMessages}}

{{actions}}

# Instructions: Write the next message for {{agentName}}.
` + messageCompletionFooter

const shouldRespondTemplate = `# About {{agentName}}:
{{bio}}

# RESPONSE EXAMPLES
{{user1}}: I just saw a really great movie
{{user2}}: Oh? Which movie?
Result: [IGNORE]

{{agentName}}: Oh, this is my favorite scene
{{user1}}: sick
{{user2}}: wait, why is it your favorite scene
Result: [RESPOND]

{{user1}}: stfu bot
Result: [STOP]

{{user1}}: Hey {{agentName}}, can you help me with something
Result: [RESPOND]

Response options are [RESPOND], [IGNORE] and [STOP].

{{agentName}} is in a room with other users and is very worried about being annoying and saying too much.
Respond with [RESPOND] to messages that are directed at {{agentName}}, or participate in conversations that are interesting or relevant to their background.
If a message is not interesting or relevant, respond with [IGNORE].
Unless directly responding to a user, respond with [IGNORE] to messages that are very short or do not contain much information.
If a user asks {{agentName}} to be quiet, respond with [STOP].
If {{agentName}} concludes a conversation and isn't part of the conversation anymore, respond with [STOP].

{{recentMessages}}

# INSTRUCTIONS: Choose the option that best describes {{agentName}}'s response to the last message.
` + shouldRespondFooter

const evaluationTemplate = "TASK: Based on the conversation and conditions, determine which evaluation functions are appropriate to call.\n" +
	"Examples:\n{{evaluatorExamples}}\n\n" +
	"INSTRUCTIONS: You are helping me to decide which appropriate functions to call based on the conversation between {{senderName}} and {{agentName}}.\n\n" +
	"{{recentMessages}}\n\n" +
	"Evaluator Functions:\n{{evaluators}}\n\n" +
	"TASK: Based on the conversation and conditions, determine which evaluation functions are appropriate to call.\n" +
	"Include the name of all relevant functions in your response.\n" +
	"Respond with a JSON array of function names in a markdown code block:\n" +
	"```json\n[{{evaluatorNames}}]\n```\n"

var defaults = map[string]string{
	MessageHandler: messageHandlerTemplate,
	ShouldRespond:  shouldRespondTemplate,
	Evaluation:     evaluationTemplate,
}

// 示例对话中替换 {{userN}} 的名字
var names = []string{
	"Alice", "Bob", "Carol", "Dave", "Eve", "Frank", "Grace", "Heidi",
	"Ivan", "Judy", "Mallory", "Niaj", "Olivia", "Peggy", "Rupert", "Sybil",
	"Trent", "Uma", "Victor", "Walter", "Xena", "Yusuf", "Zoe", "Aiko",
	"Bram", "Chloe", "Diego", "Elif", "Farah", "Gwen", "Hiro", "Ines",
	"Jonas", "Kira", "Lars", "Mei", "Nadia", "Omar", "Priya", "Quinn",
}
