package validator

import (
	"strings"
	"unicode"

	"taskflow/internal/graph"
)

// phrase is a task-like clause found in an utterance.
type phrase struct {
	Text     string
	Name     string
	Key      string
	Relation graph.Relation // empty when the utterance does not say
	Label    string         // label suggested in corrections
}

// connective is a word sequence that separates clauses.
type connective struct {
	words    []string
	relation graph.Relation // empty for neutral separators
	label    string
}

// Longer sequences first so "and then" wins over "and".
var connectives = []connective{
	{[]string{"at", "the", "same", "time"}, graph.RelationParallel, graph.LabelAtSameTime},
	{[]string{"at", "same", "time"}, graph.RelationParallel, graph.LabelAtSameTime},
	{[]string{"either", "way"}, graph.RelationConditionalConvergence, graph.LabelEitherWay},
	{[]string{"or", "else"}, graph.RelationConditionalBranch, graph.LabelOtherwise},
	{[]string{"after", "that"}, graph.RelationSequential, graph.LabelAfterwards},
	{[]string{"and", "then"}, graph.RelationSequential, graph.LabelThen},
	{[]string{"otherwise"}, graph.RelationConditionalBranch, graph.LabelOtherwise},
	{[]string{"else"}, graph.RelationConditionalBranch, graph.LabelOtherwise},
	{[]string{"regardless"}, graph.RelationConditionalConvergence, graph.LabelEitherWay},
	{[]string{"meanwhile"}, graph.RelationParallel, graph.LabelWhile},
	{[]string{"while"}, graph.RelationParallel, graph.LabelWhile},
	{[]string{"afterwards"}, graph.RelationSequential, graph.LabelAfterwards},
	{[]string{"then"}, graph.RelationSequential, graph.LabelThen},
	{[]string{"and"}, "", ""},
	{[]string{"|"}, "", ""},
}

// fillers are dropped from the start of a clause.
var fillers = [][]string{
	{"i", "am", "going", "to"},
	{"i'm", "going", "to"},
	{"going", "to"},
	{"want", "to"},
	{"need", "to"},
	{"have", "to"},
	{"like", "to"},
	{"let", "me"},
	{"i", "am"},
	{"i", "will"},
	{"i'm"}, {"im"}, {"i'll"}, {"i've"}, {"i"},
	{"we're"}, {"we"}, {"gonna"}, {"will"}, {"am"},
	{"also"}, {"just"}, {"first"}, {"next"}, {"finally"}, {"now"},
	{"usually"}, {"normally"}, {"always"}, {"so"}, {"um"}, {"uh"}, {"well"},
}

// discourse markers open a clause without describing anything. Unlike
// fillers they are dropped even when nothing is left.
var discourse = [][]string{
	{"come", "to", "think", "of", "it"},
	{"on", "second", "thought"},
	{"on", "second", "thoughts"},
	{"change", "of", "plans"},
	{"change", "of", "plan"},
	{"to", "be", "honest"},
	{"by", "the", "way"},
	{"in", "fact"},
	{"actually"}, {"anyway"}, {"anyways"}, {"btw"}, {"oh"},
}

// smallTalk clauses made only of these words carry no task.
var smallTalk = map[string]bool{
	"thanks": true, "thank": true, "you": true, "ok": true, "okay": true,
	"yes": true, "no": true, "hi": true, "hello": true, "hey": true,
	"please": true, "great": true, "cool": true, "good": true, "morning": true,
	"night": true, "bye": true, "sure": true, "alright": true,
}

var questionWords = map[string]bool{
	"what": true, "what's": true, "when": true, "where": true, "how": true,
	"why": true, "which": true, "who": true, "do": true, "does": true,
	"is": true, "are": true, "can": true, "could": true, "show": true,
}

// isQuestion reports whether the utterance asks rather than tells.
func isQuestion(utterance string) bool {
	u := strings.TrimSpace(utterance)
	if strings.HasSuffix(u, "?") {
		return true
	}
	fields := strings.Fields(strings.ToLower(u))
	return len(fields) > 0 && questionWords[fields[0]]
}

// tokenize lowercases the utterance and turns clause punctuation into "|".
func tokenize(utterance string) []string {
	u := strings.ToLower(utterance)
	u = strings.NewReplacer("’", "'", "‘", "'", "\"", " ", "“", " ", "”", " ").Replace(u)

	var sb strings.Builder
	runes := []rune(u)
	for i, r := range runes {
		switch {
		case r == ',' || r == ';' || r == ':' || r == '!' || r == '?':
			sb.WriteString(" | ")
		case r == '.':
			// Decimal points and times ("7.30") stay inside the word.
			if i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
				sb.WriteRune(r)
			} else {
				sb.WriteString(" | ")
			}
		default:
			sb.WriteRune(r)
		}
	}
	return strings.Fields(sb.String())
}

func hasPrefix(words, prefix []string) bool {
	if len(prefix) > len(words) {
		return false
	}
	for i, w := range prefix {
		if words[i] != w {
			return false
		}
	}
	return true
}

func matchConnective(words []string) (connective, bool) {
	for _, c := range connectives {
		if hasPrefix(words, c.words) {
			return c, true
		}
	}
	return connective{}, false
}

// stripFillers drops leading discourse markers and fillers in any order.
func stripFillers(words []string) []string {
	for {
		n := len(words)
		for _, d := range discourse {
			if hasPrefix(words, d) {
				words = words[len(d):]
				break
			}
		}
		for _, f := range fillers {
			if len(f) < len(words) && hasPrefix(words, f) {
				words = words[len(f):]
				break
			}
		}
		if len(words) == n {
			return words
		}
	}
}

func isSmallTalk(words []string) bool {
	for _, w := range words {
		if !smallTalk[w] {
			return false
		}
	}
	return true
}

// extractPhrases splits a statement into task-like clauses and records the
// relation each clause was introduced with. A clause starting with "if" is a
// condition for the next clause, not a task.
func extractPhrases(utterance string) []phrase {
	if isQuestion(utterance) {
		return nil
	}
	words := tokenize(utterance)

	var (
		out      []phrase
		clause   []string
		relation graph.Relation
		label    string
	)
	flush := func() {
		defer func() { clause = nil }()
		clause = stripFillers(clause)
		if len(clause) == 0 {
			return
		}
		if clause[0] == "if" || clause[0] == "unless" {
			cond := strings.Join(clause[1:], " ")
			relation, label = graph.RelationConditionalBranch, graph.IfLabel(cond)
			if clause[0] == "unless" {
				label = graph.IfLabel("not " + cond)
			}
			return
		}
		body := cleanWords(clause)
		if len(body) == 0 || isSmallTalk(body) {
			return
		}
		p := newPhrase(body)
		if p.Key == "" {
			return
		}
		p.Relation, p.Label = relation, label
		out = append(out, p)
		relation, label = "", ""
	}

	for i := 0; i < len(words); {
		if c, ok := matchConnective(words[i:]); ok {
			flush()
			if c.relation != "" {
				relation, label = c.relation, c.label
			}
			i += len(c.words)
			continue
		}
		clause = append(clause, words[i])
		i++
	}
	flush()

	explicit := false
	for _, p := range out {
		if p.Relation != "" && p.Relation != graph.RelationSequential {
			explicit = true
			break
		}
	}
	if !explicit {
		for i := range out {
			if out[i].Relation == "" {
				out[i].Relation, out[i].Label = graph.RelationSequential, graph.LabelThen
			}
		}
	}
	return out
}

// cleanWords drops punctuation inside words and empty results.
func cleanWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, w)
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// determiners are left out of suggested task names.
var determiners = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "our": true, "your": true,
	"his": true, "her": true, "their": true, "some": true,
}

func newPhrase(words []string) phrase {
	text := strings.Join(words, " ")
	display := make([]string, 0, len(words))
	for i, w := range words {
		if i == 0 {
			w = stem(w)
		}
		if determiners[w] {
			continue
		}
		display = append(display, w)
	}
	return phrase{
		Text: text,
		Name: graph.NormalizeName(strings.Join(display, " ")),
		Key:  key(text),
	}
}

// irregular gerunds the suffix rules get wrong.
var gerunds = map[string]string{
	"making": "make", "having": "have", "taking": "take", "writing": "write",
	"driving": "drive", "leaving": "leave", "coming": "come", "giving": "give",
	"using": "use", "shaving": "shave", "bathing": "bathe", "preparing": "prepare",
	"changing": "change", "dancing": "dance", "exercising": "exercise",
	"baking": "bake", "biking": "bike", "hiking": "hike", "riding": "ride",
	"closing": "close", "going": "go", "doing": "do", "meditating": "meditate",
	"skating": "skate", "hoping": "hope", "starting": "start", "saving": "save",
}

// stem reduces a word to a rough base form. It only needs to be consistent,
// since both sides of a comparison go through it.
func stem(w string) string {
	w = strings.ToLower(w)
	if base, ok := gerunds[w]; ok {
		return base
	}
	if strings.HasSuffix(w, "ing") && len(w) > 5 {
		base := w[:len(w)-3]
		n := len(base)
		if n >= 2 && base[n-1] == base[n-2] && strings.ContainsRune("bdgmnpt", rune(base[n-1])) {
			base = base[:n-1]
		}
		return base
	}
	return w
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "our": true, "your": true,
	"his": true, "her": true, "their": true, "some": true, "to": true, "of": true,
	"for": true, "at": true, "in": true, "on": true, "with": true,
}

// splitWords splits on non-alphanumerics and lower-to-upper case changes, so
// "MakeCoffee" and "make coffee" yield the same words.
func splitWords(s string) []string {
	var (
		words []string
		cur   []rune
		prev  rune
	)
	emit := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = nil
		}
	}
	for _, r := range s {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			emit()
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			emit()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
		prev = r
	}
	emit()
	return words
}

// key is the comparison form of a task name or phrase.
func key(s string) string {
	var parts []string
	for _, w := range splitWords(s) {
		if stopWords[w] {
			continue
		}
		w = stem(w)
		if len(w) > 3 && strings.HasSuffix(w, "s") &&
			!strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us") && !strings.HasSuffix(w, "is") {
			w = w[:len(w)-1]
		}
		parts = append(parts, w)
	}
	return strings.Join(parts, " ")
}

// keysMatch reports whether one key's words are all contained in the other's.
func keysMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return subset(strings.Fields(a), strings.Fields(b)) || subset(strings.Fields(b), strings.Fields(a))
}

func subset(small, big []string) bool {
	set := make(map[string]bool, len(big))
	for _, w := range big {
		set[w] = true
	}
	for _, w := range small {
		if !set[w] {
			return false
		}
	}
	return true
}
