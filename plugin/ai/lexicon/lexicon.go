// Package lexicon holds the keyword tables shared by the rule-based matchers.
package lexicon

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize lowercases text and folds curly apostrophes.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	return strings.NewReplacer("’", "'", "‘", "'").Replace(text)
}

// ContainsAny reports whether normalized text contains any phrase.
func ContainsAny(text string, phrases []string) bool {
	return FirstMatch(text, phrases) != ""
}

// FirstMatch returns the first phrase found in text, or "".
func FirstMatch(text string, phrases []string) string {
	text = Normalize(text)
	for _, p := range phrases {
		if containsPhrase(text, Normalize(p)) {
			return p
		}
	}
	return ""
}

// Matches returns every phrase found in text, in table order.
func Matches(text string, phrases []string) []string {
	text = Normalize(text)
	var out []string
	for _, p := range phrases {
		if containsPhrase(text, Normalize(p)) {
			out = append(out, p)
		}
	}
	return out
}

// containsPhrase matches whole words: "ok" matches "ok, done" but not "look".
func containsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	for from := 0; from <= len(text)-len(phrase); {
		i := strings.Index(text[from:], phrase)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(phrase)
		if boundaryBefore(text, start, phrase) && boundaryAfter(text, end, phrase) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func boundaryBefore(text string, start int, phrase string) bool {
	first, _ := utf8.DecodeRuneInString(phrase)
	if start == 0 || !isWordRune(first) {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:start])
	return !isWordRune(prev)
}

func boundaryAfter(text string, end int, phrase string) bool {
	last, _ := utf8.DecodeLastRuneInString(phrase)
	if end >= len(text) || !isWordRune(last) {
		return true
	}
	next, _ := utf8.DecodeRuneInString(text[end:])
	return !isWordRune(next)
}

// ResponderArrival signals that professional help has taken over.
var ResponderArrival = []string{
	"ambulance is here", "ambulance just arrived", "ambulance arrived", "ambulance has arrived",
	"paramedics are here", "paramedics arrived", "paramedics just arrived",
	"emt arrived", "emts arrived", "emts are here", "emt is here",
	"responders arrived", "responders are here", "help has arrived", "help is here",
	"they're taking over", "they took over", "doctors are here",
}

// Confirmations signal that the current step was done.
var Confirmations = []string{
	"done", "did it", "i did", "ok", "okay", "yes", "yeah", "yep", "got it",
	"i'm doing", "im doing", "i am doing", "doing it", "like you said", "i called", "called them",
	"they're on the way", "on their way", "finished", "ready", "i've done", "i have done", "it's done",
}

// Distress signals that the situation changed or worsened.
var Distress = []string{
	"getting worse", "worse", "not working", "isn't working", "it's not helping", "stopped breathing",
	"turning blue", "blue lips", "seizure", "shaking", "bleeding", "vomiting", "throwing up",
	"he's not moving", "she's not moving", "not responding", "went limp", "can't breathe",
}

// Negations turn a naive confirmation into an ambiguous reply.
var Negations = []string{"not yet", "no", "don't", "can't", "cannot", "haven't", "didn't", "won't", "what", "how", "?"}

// StopHedges mark a reply as a question or a denial; such a reply must not
// end a procedure ("where is the ambulance?", "it hasn't arrived").
var StopHedges = []string{
	"?", "not", "no", "never", "yet", "where", "when", "how long", "still waiting", "waiting for",
	"on the way", "on their way", "coming", "soon",
}

// Hedged reports whether text questions or denies what it mentions.
func Hedged(text string) bool {
	text = Normalize(text)
	if strings.Contains(text, "n't") {
		return true
	}
	return ContainsAny(text, StopHedges)
}

// Medications lists interventions worth noting for responders.
var Medications = []string{
	"epipen", "epinephrine", "auto-injector", "adrenaline", "aspirin", "nitroglycerin",
	"inhaler", "albuterol", "naloxone", "narcan", "insulin", "glucose", "antihistamine",
	"benadryl", "aed", "defibrillator", "oxygen",
}

var relationRe = regexp.MustCompile(`\bmy (dad|father|mom|mother|son|daughter|husband|wife|partner|friend|brother|sister|child|baby|grandma|grandpa|grandmother|grandfather|boss|coworker|colleague|neighbor|neighbour|roommate)\b`)

// PatientRelation extracts "my <relation>" from text.
func PatientRelation(text string) string {
	m := relationRe.FindStringSubmatch(Normalize(text))
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// MedicationsIn returns the medications mentioned in text, sorted.
func MedicationsIn(text string) []string {
	found := Matches(text, Medications)
	sort.Strings(found)
	return found
}
