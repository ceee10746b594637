package dialog

// InputKind tags an inbound message after classification at the transport boundary.
type InputKind int

const (
	InputText InputKind = iota
	InputYes
	InputNo
	InputBack
	InputSkip
)

// Input is one classified inbound message. Text is set only for InputText.
type Input struct {
	Kind InputKind
	Text string
}

var (
	Yes  = Input{Kind: InputYes}
	No   = Input{Kind: InputNo}
	Back = Input{Kind: InputBack}
	Skip = Input{Kind: InputSkip}
)

// Text returns a free-text input.
func Text(s string) Input { return Input{Kind: InputText, Text: s} }

// Keyboard is the reply keyboard shown with a prompt.
type Keyboard int

const (
	KeyboardRemove Keyboard = iota
	KeyboardYesNo
	KeyboardBack
	KeyboardBackSkip
	KeyboardYesNoBack
)

// Reply is the engine's answer: the prompt to send and the step the conversation is now in.
type Reply struct {
	Text     string
	Keyboard Keyboard
	Step     Step
}
