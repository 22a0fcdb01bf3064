package consterr

//ConstErr lets sentinel errors be declared as constants rather than package vars
// that could be reassigned
type ConstErr string

//Error returns the value of the underlying string
func (errstr ConstErr) Error() string { return string(errstr) }

var _ error = ConstErr("") //compile time type check
