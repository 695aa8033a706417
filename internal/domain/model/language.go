package model

type Language struct {
	Slug      string `json:"value"`
	Name      string `json:"label"`
	Extension string `json:"extension"`
}

const (
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangJava       = "java"
)

var allLanguages = []Language{
	{Slug: LangPython, Name: "Python", Extension: "py"},
	{Slug: LangJavaScript, Name: "JavaScript", Extension: "js"},
	{Slug: LangJava, Name: "Java", Extension: "java"},
}

// SupportedLanguages lists the editor languages for a problem. Java is
// dropped when the function returns a bare object.
func SupportedLanguages(spec *InterfaceSpec) []Language {
	out := make([]Language, 0, len(allLanguages))
	for _, l := range allLanguages {
		if l.Slug == LangJava && spec != nil && spec.ReturnType == "object" {
			continue
		}
		out = append(out, l)
	}
	return out
}

func IsSupportedLanguage(spec *InterfaceSpec, slug string) bool {
	for _, l := range SupportedLanguages(spec) {
		if l.Slug == slug {
			return true
		}
	}
	return false
}
