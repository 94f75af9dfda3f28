package app

// Key binding constants used in handleKey.
const (
	KeyQuit           = "q"
	KeyCtrlC          = "ctrl+c"
	KeySpace          = " "
	KeyTab            = "tab"
	KeyUp             = "up"
	KeyDown           = "down"
	KeyJ              = "j"
	KeyK              = "k"
	KeyEnter          = "enter"
	KeyEsc            = "esc"
	KeyBackspace      = "backspace"
	KeySave           = "ctrl+s"
	KeyTranscribe     = "t"
	KeyAnalyzeSession = "A"
	KeyEditTitle      = "e"
	KeyEditNotes      = "n"
	KeyAddSlide       = "+"
	KeyDeleteSlide    = "d"
	KeyConfirm        = "y"
	KeySessions       = "s"
	KeyNewSession     = "N"
)
