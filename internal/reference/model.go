package reference

// LanguageCatalog: файл со списком языков сайта для первичного заполнения.
type LanguageCatalog struct {
	Default   string         `yaml:"default"`
	Languages []LanguageItem `yaml:"languages"`
}

type LanguageItem struct {
	Code       string `yaml:"code"`
	Name       string `yaml:"name"`
	NativeName string `yaml:"native_name,omitempty"`
	Order      int    `yaml:"order,omitempty"`
	// Disabled: язык заведён, но скрыт с сайта.
	Disabled bool `yaml:"disabled,omitempty"`
}
