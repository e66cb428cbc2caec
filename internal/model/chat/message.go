package chat

// Sender 标识消息来源。
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one immutable entry of the conversation history.
type Message struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// UserMessage builds a message sent by the user.
func UserMessage(text string) Message {
	return Message{Sender: SenderUser, Text: text}
}

// BotMessage builds a fully revealed bot reply.
func BotMessage(text string) Message {
	return Message{Sender: SenderBot, Text: text}
}
