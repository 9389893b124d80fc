package conversation

import "context"

// Message is an outbound rendering understood by the messaging provider.
type Message interface {
	isMessage()
}

// Text is a plain text message.
type Text struct {
	Body string
}

// Buttons is a text message with a small set of reply buttons.
type Buttons struct {
	Body   string
	Labels []string
}

// List is an interactive list with grouped rows.
type List struct {
	Header   string
	Body     string
	Footer   string
	Button   string
	Sections []Section
}

type Section struct {
	Title string
	Rows  []Row
}

type Row struct {
	ID          string
	Title       string
	Description string
}

// Media is an attachment referenced by a public URL.
type Media struct {
	URL     string
	Caption string
}

func (Text) isMessage()    {}
func (Buttons) isMessage() {}
func (List) isMessage()    {}
func (Media) isMessage()   {}

// Sender delivers outbound messages to a user.
type Sender interface {
	Send(ctx context.Context, to string, msg Message) error
}

// Say is a shorthand for a text message.
func Say(body string) Message {
	return Text{Body: body}
}
