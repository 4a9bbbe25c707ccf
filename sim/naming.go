package sim

import "strings"

// NameMustBeValid panics if the given name does not follow the hierarchical
// naming convention. A name is a series of dot-separated tokens. Each token
// is an element name optionally followed by bracketed integer indices, such
// as "Bridge.TopPort" or "Sim.Mem[3]".
func NameMustBeValid(name string) {
	if name == "" {
		panic("name must not be empty")
	}

	tokens := strings.Split(name, ".")
	for _, token := range tokens {
		tokenMustBeValid(token)
	}
}

func tokenMustBeValid(token string) {
	if token == "" {
		panic("name token must not be empty")
	}

	bracketMustMatch(token)

	for _, c := range token {
		validChar := c == '[' || c == ']' || c == '_' ||
			(c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9')
		if !validChar {
			panic("invalid character in name: " + token)
		}
	}
}

func bracketMustMatch(token string) {
	openBracketCount := 0
	for _, c := range token {
		if c == '[' {
			openBracketCount++
		} else if c == ']' {
			openBracketCount--
			if openBracketCount < 0 {
				panic("name bracket must match")
			}
		}
	}

	if openBracketCount != 0 {
		panic("name bracket must match")
	}
}
