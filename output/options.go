package output

type Options struct {
	PrintResponseHeader bool
	PrintResponseBody   bool

	EnableColor bool

	OutputFile string
	Overwrite  bool
}
