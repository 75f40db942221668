package latex

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrUnbalanced = errors.New("unbalanced braces")
	ErrEmpty      = errors.New("empty formula")
)

// UnknownCommandError is returned for a control sequence with no mapping
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command \\%s", e.Name)
}

// Unicode renders a useful subset of math-mode LaTeX as plain Unicode text
var Unicode Renderer = RendererFunc(renderUnicode)

var symbols = map[string]string{
	// greek
	"alpha": "α", "beta": "β", "gamma": "γ", "delta": "δ", "epsilon": "ε",
	"varepsilon": "ε", "zeta": "ζ", "eta": "η", "theta": "θ", "vartheta": "ϑ",
	"iota": "ι", "kappa": "κ", "lambda": "λ", "mu": "μ", "nu": "ν", "xi": "ξ",
	"pi": "π", "varpi": "ϖ", "rho": "ρ", "sigma": "σ", "tau": "τ", "upsilon": "υ",
	"phi": "φ", "varphi": "φ", "chi": "χ", "psi": "ψ", "omega": "ω",
	"Gamma": "Γ", "Delta": "Δ", "Theta": "Θ", "Lambda": "Λ", "Xi": "Ξ", "Pi": "Π",
	"Sigma": "Σ", "Upsilon": "Υ", "Phi": "Φ", "Psi": "Ψ", "Omega": "Ω",

	// operators and relations
	"sum": "∑", "prod": "∏", "int": "∫", "iint": "∬", "oint": "∮",
	"partial": "∂", "nabla": "∇", "infty": "∞", "pm": "±", "mp": "∓",
	"times": "×", "div": "÷", "cdot": "·", "ast": "∗", "circ": "∘",
	"leq": "≤", "le": "≤", "geq": "≥", "ge": "≥", "neq": "≠", "ne": "≠",
	"approx": "≈", "equiv": "≡", "sim": "∼", "simeq": "≃", "propto": "∝",
	"in": "∈", "notin": "∉", "subset": "⊂", "subseteq": "⊆", "supset": "⊃",
	"supseteq": "⊇", "cup": "∪", "cap": "∩", "emptyset": "∅", "forall": "∀",
	"exists": "∃", "neg": "¬", "land": "∧", "lor": "∨", "wedge": "∧", "vee": "∨",
	"to": "→", "rightarrow": "→", "leftarrow": "←", "Rightarrow": "⇒",
	"Leftarrow": "⇐", "leftrightarrow": "↔", "Leftrightarrow": "⇔", "mapsto": "↦",
	"implies": "⟹", "iff": "⟺", "ldots": "…", "cdots": "⋯", "dots": "…",
	"angle": "∠", "perp": "⊥", "parallel": "∥", "degree": "°", "prime": "′",
	"hbar": "ℏ", "ell": "ℓ", "Re": "ℜ", "Im": "ℑ", "aleph": "ℵ",
	"langle": "⟨", "rangle": "⟩", "lfloor": "⌊", "rfloor": "⌋",
	"lceil": "⌈", "rceil": "⌉", "vert": "|", "mid": "|", "lbrace": "{", "rbrace": "}",

	// named functions print as words
	"sin": "sin", "cos": "cos", "tan": "tan", "cot": "cot", "sec": "sec", "csc": "csc",
	"arcsin": "arcsin", "arccos": "arccos", "arctan": "arctan", "sinh": "sinh",
	"cosh": "cosh", "tanh": "tanh", "log": "log", "ln": "ln", "lg": "lg", "exp": "exp",
	"lim": "lim", "max": "max", "min": "min", "sup": "sup", "inf": "inf",
	"det": "det", "gcd": "gcd", "deg": "deg", "arg": "arg", "dim": "dim", "ker": "ker",
}

var blackboard = map[rune]string{
	'R': "ℝ", 'N': "ℕ", 'Z': "ℤ", 'Q': "ℚ", 'C': "ℂ", 'P': "ℙ", 'H': "ℍ",
}

var superscripts = map[rune]rune{
	'0': '⁰', '1': '¹', '2': '²', '3': '³', '4': '⁴', '5': '⁵', '6': '⁶',
	'7': '⁷', '8': '⁸', '9': '⁹', '+': '⁺', '-': '⁻', '=': '⁼', '(': '⁽',
	')': '⁾', 'n': 'ⁿ', 'i': 'ⁱ', 'x': 'ˣ', 'y': 'ʸ', 'a': 'ᵃ', 'b': 'ᵇ',
	'c': 'ᶜ', 'd': 'ᵈ', 'e': 'ᵉ', 'k': 'ᵏ', 'm': 'ᵐ', 't': 'ᵗ', 'T': 'ᵀ',
}

var subscripts = map[rune]rune{
	'0': '₀', '1': '₁', '2': '₂', '3': '₃', '4': '₄', '5': '₅', '6': '₆',
	'7': '₇', '8': '₈', '9': '₉', '+': '₊', '-': '₋', '=': '₌', '(': '₍',
	')': '₎', 'a': 'ₐ', 'e': 'ₑ', 'i': 'ᵢ', 'j': 'ⱼ', 'k': 'ₖ', 'n': 'ₙ',
	'm': 'ₘ', 'o': 'ₒ', 'x': 'ₓ', 'r': 'ᵣ', 't': 'ₜ', 'p': 'ₚ', 's': 'ₛ',
}

func renderUnicode(expr string, block bool) (string, error) {
	if strings.TrimSpace(expr) == "" {
		return "", ErrEmpty
	}
	p := &parser{src: []rune(expr), block: block}
	out, err := p.parseUntil(0)
	if err != nil {
		return "", err
	}
	if p.pos < len(p.src) {
		return "", ErrUnbalanced
	}
	return strings.TrimSpace(collapseSpaces(out)), nil
}

type parser struct {
	src   []rune
	pos   int
	block bool
}

// parseUntil consumes input up to the matching close brace when depth > 0,
// or to the end of input at depth 0.
func (p *parser) parseUntil(depth int) (string, error) {
	var sb strings.Builder
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		switch r {
		case '}':
			if depth == 0 {
				return "", ErrUnbalanced
			}
			p.pos++
			return sb.String(), nil
		case '{':
			p.pos++
			inner, err := p.parseUntil(depth + 1)
			if err != nil {
				return "", err
			}
			sb.WriteString(inner)
		case '^', '_':
			p.pos++
			arg, err := p.argument()
			if err != nil {
				return "", err
			}
			if r == '^' {
				sb.WriteString(script(arg, superscripts, "^"))
			} else {
				sb.WriteString(script(arg, subscripts, "_"))
			}
		case '\\':
			out, err := p.command()
			if err != nil {
				return "", err
			}
			sb.WriteString(out)
		case '&':
			p.pos++
			sb.WriteByte(' ')
		case '~':
			p.pos++
			sb.WriteByte(' ')
		default:
			p.pos++
			sb.WriteRune(r)
		}
	}
	if depth > 0 {
		return "", ErrUnbalanced
	}
	return sb.String(), nil
}

// argument reads one braced group, command or single character
func (p *parser) argument() (string, error) {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
	if p.pos >= len(p.src) {
		return "", fmt.Errorf("missing argument")
	}
	switch r := p.src[p.pos]; r {
	case '{':
		p.pos++
		return p.parseUntil(1)
	case '\\':
		return p.command()
	case '}':
		return "", ErrUnbalanced
	default:
		p.pos++
		return string(r), nil
	}
}

func (p *parser) command() (string, error) {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return "", &UnknownCommandError{Name: ""}
	}

	start := p.pos
	for p.pos < len(p.src) && unicode.IsLetter(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		// control symbol
		r := p.src[p.pos]
		p.pos++
		switch r {
		case ',', ';', ':', '!', ' ':
			return " ", nil
		case '\\':
			if p.block {
				return "\n", nil
			}
			return " ", nil
		case '{', '}', '$', '%', '#', '&', '_', '|':
			return string(r), nil
		}
		return "", &UnknownCommandError{Name: string(r)}
	}
	name := string(p.src[start:p.pos])

	switch name {
	case "frac", "dfrac", "tfrac":
		num, err := p.argument()
		if err != nil {
			return "", err
		}
		den, err := p.argument()
		if err != nil {
			return "", err
		}
		return wrap(num) + "/" + wrap(den), nil
	case "sqrt":
		arg, err := p.argument()
		if err != nil {
			return "", err
		}
		return "√" + wrap(arg), nil
	case "text", "mathrm", "mathbf", "mathit", "mathsf", "mathtt", "operatorname", "boldsymbol", "textbf", "textit":
		return p.argument()
	case "mathbb":
		arg, err := p.argument()
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, r := range arg {
			if s, ok := blackboard[r]; ok {
				sb.WriteString(s)
			} else {
				sb.WriteRune(r)
			}
		}
		return sb.String(), nil
	case "vec", "hat", "bar", "overline", "tilde", "dot":
		arg, err := p.argument()
		if err != nil {
			return "", err
		}
		return arg + accent(name), nil
	case "left", "right", "big", "Big", "bigg", "Bigg", "displaystyle", "limits":
		return "", nil
	case "quad", "qquad":
		return "  ", nil
	}

	if s, ok := symbols[name]; ok {
		return s, nil
	}
	return "", &UnknownCommandError{Name: name}
}

func accent(name string) string {
	switch name {
	case "vec":
		return "⃗"
	case "hat":
		return "̂"
	case "tilde":
		return "̃"
	case "dot":
		return "̇"
	}
	return "̅"
}

// script maps every rune of s through table, or falls back to a marked
// group when some rune has no scripted form.
func script(s string, table map[rune]rune, marker string) string {
	var sb strings.Builder
	for _, r := range s {
		m, ok := table[r]
		if !ok {
			return marker + wrap(s)
		}
		sb.WriteRune(m)
	}
	return sb.String()
}

func wrap(s string) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= 1 || isNumber(s) {
		return s
	}
	return "(" + s + ")"
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return s != ""
}

func collapseSpaces(s string) string {
	var sb strings.Builder
	space := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if !space {
				sb.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}
