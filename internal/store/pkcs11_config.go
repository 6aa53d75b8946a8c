package store

// PKCS11Config locates a token through a PKCS#11 module such as SoftHSM.
type PKCS11Config struct {
	Module string `mapstructure:"module" yaml:"module"` // path to the module's shared library
	Slot   uint   `mapstructure:"slot" yaml:"slot"`
	PIN    string `mapstructure:"pin" yaml:"pin,omitempty"`
}
