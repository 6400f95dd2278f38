package token

import "fmt"

// Domain is a named composition of one token per subsystem. It is
// resolved once at composition time and immutable afterwards.
type Domain struct {
	name    string
	unit    Unit
	buffer  Buffer
	routine Routine
}

// Compose validates the provided tokens and returns the domain composed
// of them. Unknown or zero tokens and axis conflicts yield a
// *ConfigError, never a silently resolved value.
func Compose(name string, u Unit, b Buffer, r Routine) (Domain, error) {
	if name == "" {
		return Domain{}, &ConfigError{Axis: "domain", Reason: "empty name"}
	}
	if !u.Valid() {
		return Domain{}, &ConfigError{Axis: "unit", Reason: fmt.Sprintf("unknown token %d", u)}
	}
	if err := b.Validate(); err != nil {
		return Domain{}, err
	}
	if !r.Valid() {
		return Domain{}, &ConfigError{Axis: "routine", Reason: fmt.Sprintf("unknown token %d", r)}
	}
	return Domain{name: name, unit: u, buffer: b, routine: r}, nil
}

// MustCompose is like Compose but panics on composition error. It is
// intended for package-level domain declarations.
func MustCompose(name string, u Unit, b Buffer, r Routine) Domain {
	d, err := Compose(name, u, b, r)
	if err != nil {
		panic(err)
	}
	return d
}

// Predefined domains for the standard backends.
var (
	Audio    = MustCompose("audio", SampleRate, AudioBackend, SampleAccurate)
	Graphics = MustCompose("graphics", FrameRate, GraphicsBackend, FrameAccurate)
)

// Decompose returns the per-subsystem tokens of the domain.
func (d Domain) Decompose() (Unit, Buffer, Routine) {
	return d.unit, d.buffer, d.routine
}

// Name returns the domain name.
func (d Domain) Name() string { return d.name }

// Unit returns the generator/transformer token of the domain.
func (d Domain) Unit() Unit { return d.unit }

// Buffer returns the buffer token of the domain.
func (d Domain) Buffer() Buffer { return d.buffer }

// Routine returns the temporal routine token of the domain.
func (d Domain) Routine() Routine { return d.routine }

// Zero returns true for the zero value, which identifies no domain.
func (d Domain) Zero() bool { return d == Domain{} }

func (d Domain) String() string {
	if d.Zero() {
		return "none"
	}
	return fmt.Sprintf("%s (%v/%v/%v)", d.name, d.unit, d.buffer, d.routine)
}
