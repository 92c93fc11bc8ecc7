package tensor

var (
	errNegativeDim    = fmtError("negative dimension for matrix")
	errStrideTooSmall = fmtError("row stride smaller than column count")
	errDataTooShort   = fmtError("data shorter than strided matrix")

	// ErrUnsupportedParameter reports a lookup-table operator whose
	// parameters are valid numbers but outside what the operator accepts,
	// such as a sigmoid output scale other than 1/256.
	ErrUnsupportedParameter = fmtError("unsupported parameter")
	// ErrInvalidParameter reports a non-finite, non-normal or
	// non-positive operator argument.
	ErrInvalidParameter = fmtError("invalid parameter")
)

type fmtError string

func (e fmtError) Error() string { return string(e) }
