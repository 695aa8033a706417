package model

import (
	"fmt"
	"strings"
)

// GenerateTemplate returns the starter code for language. A backend stub
// wins, then a signature derived from the interface spec, then a minimal
// placeholder.
func GenerateTemplate(language string, spec *InterfaceSpec, stubs map[string]FunctionTemplate) string {
	if t, ok := stubs[language]; ok && t.StubCode != "" {
		return t.StubCode
	}
	if spec != nil && spec.FunctionName != "" {
		return functionTemplate(language, spec)
	}
	return minimalTemplate(language)
}

// TemplateFor is GenerateTemplate for a problem descriptor.
func TemplateFor(p Problem, language string) string {
	return GenerateTemplate(language, p.InterfaceSpec, p.FunctionTemplates)
}

func functionTemplate(language string, spec *InterfaceSpec) string {
	params := spec.ParamList()
	ret := spec.Return()

	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}

	switch language {
	case LangPython:
		docs := make([]string, len(params))
		for i, p := range params {
			docs[i] = fmt.Sprintf("%s: %s", p.Name, pythonType(p.Type))
		}
		return fmt.Sprintf("def %s(%s):\n    \"\"\"\n    %s\n    Returns: %s\n    \"\"\"\n    # TODO: Implement your solution here\n    pass",
			spec.FunctionName, strings.Join(names, ", "), strings.Join(docs, "\n    "), pythonType(ret))

	case LangJavaScript:
		docs := make([]string, len(params))
		for i, p := range params {
			docs[i] = fmt.Sprintf("@param {%s} %s", jsType(p.Type), p.Name)
		}
		return fmt.Sprintf("/**\n * %s\n * @returns {%s}\n */\nfunction %s(%s) {\n    // TODO: Implement your solution here\n    \n}",
			strings.Join(docs, "\n * "), jsType(ret), spec.FunctionName, strings.Join(names, ", "))

	case LangJava:
		args := make([]string, len(params))
		docs := make([]string, len(params))
		for i, p := range params {
			args[i] = javaType(p.Type) + " " + p.Name
			docs[i] = fmt.Sprintf("@param %s %s", p.Name, javaType(p.Type))
		}
		javaRet := javaType(ret)
		hint := ""
		if strings.Contains(javaRet, "HashMap") {
			hint = "        // NOTE: You can change return type above if needed (int, int[], String, etc.)\n        "
		}
		return fmt.Sprintf("class Solution {\n    /**\n     * %s\n     * @return %s\n     */\n    public %s %s(%s) {\n%s        // TODO: Implement your solution here\n        \n    }\n}",
			strings.Join(docs, "\n     * "), javaRet, javaRet, spec.FunctionName, strings.Join(args, ", "), hint)
	}
	return minimalTemplate(language)
}

func minimalTemplate(language string) string {
	switch language {
	case LangPython:
		return "# Your code here"
	case LangJava:
		return "public class Solution {\n    public static void main(String[] args) {\n        // Your code here\n    }\n}"
	}
	return "// Your code here"
}

var pythonTypes = map[string]string{
	"int": "int", "integer": "int", "float": "float", "number": "float",
	"string": "str", "bool": "bool", "boolean": "bool",
	"int[]": "List[int]", "array<integer>": "List[int]", "array<string>": "List[str]",
	"array<float>": "List[float]", "array": "List", "object": "Dict",
	"array<array<integer>>": "List[List[int]]",
}

var jsTypes = map[string]string{
	"int": "number", "integer": "number", "float": "number", "number": "number",
	"string": "string", "bool": "boolean", "boolean": "boolean",
	"int[]": "number[]", "array<integer>": "number[]", "array<string>": "string[]",
	"array<float>": "number[]", "array": "any[]", "object": "object",
	"array<array<integer>>": "number[][]",
}

var javaTypes = map[string]string{
	"int": "int", "integer": "int", "float": "double", "number": "double",
	"string": "String", "bool": "boolean", "boolean": "boolean",
	"array<integer>": "int[]", "array<string>": "String[]", "array<float>": "double[]",
	"array": "int[]", "object": "HashMap<String, Object>",
	"array<array<integer>>": "int[][]", "void": "void", "null": "void",
}

func pythonType(t string) string {
	if v, ok := pythonTypes[t]; ok {
		return v
	}
	return "Any"
}

func jsType(t string) string {
	if v, ok := jsTypes[t]; ok {
		return v
	}
	return "any"
}

func javaType(t string) string {
	if t == "" {
		return "int"
	}
	if strings.Contains(t, "[]") {
		return javaType(strings.Replace(t, "[]", "", 1)) + "[]"
	}
	if v, ok := javaTypes[t]; ok {
		return v
	}
	return "int"
}
