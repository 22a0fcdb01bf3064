package flashsim

//HAL is the surface flash management code is written against; it cannot tell
// a simulated part from a real one.
type HAL interface {
	Init() error
	Read(addr uint32, dst []byte) error
	Write(addr uint32, src []byte) error
	EraseSector(addr uint32) error
	Geometry() *Geometry
}

//Fixture is the test harness only surface used to seed flash contents that
// were never programmed through HAL
type Fixture interface {
	Overwrite(addr uint32, src []byte) error
	Fill(addr uint32, val byte, length uint32) error
}

var (
	_ HAL     = (*Device)(nil)
	_ Fixture = (*Device)(nil)
)
