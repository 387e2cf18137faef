package app

import (
	"context"
	"fmt"
	"strings"

	"kanaime/internal/ime"
)

var namedKeys = map[string]ime.Key{
	"space":     {Code: ime.VKSpace},
	"enter":     {Code: ime.VKReturn},
	"ret":       {Code: ime.VKReturn},
	"esc":       {Code: ime.VKEscape},
	"escape":    {Code: ime.VKEscape},
	"bs":        {Code: ime.VKBack},
	"backspace": {Code: ime.VKBack},
	"tab":       {Code: ime.VKTab},
	"up":        {Code: ime.VKUp},
	"down":      {Code: ime.VKDown},
	"left":      {Code: ime.VKLeft},
	"right":     {Code: ime.VKRight},
	"home":      {Code: ime.VKHome},
	"end":       {Code: ime.VKEnd},
	"pgup":      {Code: ime.VKPrior},
	"pgdn":      {Code: ime.VKNext},
	"del":       {Code: ime.VKDelete},
}

var modifierPrefixes = map[string]ime.Modifiers{
	"c": ime.ModControl,
	"a": ime.ModAlt,
	"m": ime.ModMeta,
	"s": ime.ModShift,
}

// ParseKeys turns a key script into keys. Letters, digits, '-' and ' ' stand
// for themselves; <name> names a special key and <c-x>, <a-x>, <m-x>, <s-x>
// add modifiers.
//
//	ParseKeys("kana<space><down><enter>")
func ParseKeys(script string) ([]ime.Key, error) {
	var keys []ime.Key
	rest := script
	for rest != "" {
		if rest[0] == '<' {
			end := strings.IndexByte(rest, '>')
			if end < 0 {
				return nil, fmt.Errorf("unterminated key name in %q", rest)
			}
			key, err := parseNamedKey(strings.ToLower(rest[1:end]))
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
			rest = rest[end+1:]
			continue
		}

		r := []rune(rest)[0]
		key, err := keyForChar(r)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
		rest = rest[len(string(r)):]
	}
	return keys, nil
}

func parseNamedKey(name string) (ime.Key, error) {
	var mods ime.Modifiers
	for len(name) > 2 && name[1] == '-' {
		m, ok := modifierPrefixes[name[:1]]
		if !ok {
			break
		}
		mods |= m
		name = name[2:]
	}

	if key, ok := namedKeys[name]; ok {
		key.Modifiers |= mods
		return key, nil
	}
	if len([]rune(name)) == 1 {
		key, err := keyForChar([]rune(name)[0])
		if err != nil {
			return ime.Key{}, err
		}
		key.Modifiers |= mods
		return key, nil
	}
	return ime.Key{}, fmt.Errorf("unknown key <%s>", name)
}

func keyForChar(r rune) (ime.Key, error) {
	if code, mods, ok := ime.KeyForRune(r); ok {
		return ime.Key{Code: code, Modifiers: mods}, nil
	}
	if r >= '0' && r <= '9' {
		return ime.Key{Code: ime.VK0 + ime.VirtualKey(r-'0')}, nil
	}
	return ime.Key{}, fmt.Errorf("no key produces %q", r)
}

// ReplayStep records one key of a replay.
type ReplayStep struct {
	Key   ime.Key
	Eaten bool
	Phase ime.Phase
	Text  string
}

// ReplayResult is the outcome of Replay.
type ReplayResult struct {
	Steps []ReplayStep
	Text  string
	Phase ime.Phase
	State ime.State
}

// Replay drives a fresh session over an in-memory document holding initial
// text. Keys the session passes are applied the way a plain text field
// would: printable keys insert their character and backspace deletes.
func (rt *Runtime) Replay(ctx context.Context, initial string, keys []ime.Key) ReplayResult {
	doc := ime.NewMemoryDocument(initial)
	sess := rt.NewSession(doc)
	doc.OnTerminate(sess.OnCompositionTerminated)
	sess.SetSurroundingText(initial)
	rt.Metrics.SessionOpened()
	defer func() {
		sess.Close(ctx)
		rt.Metrics.SessionClosed()
	}()

	var res ReplayResult
	for _, key := range keys {
		eaten := sess.OnKeyDown(ctx, key)
		if !eaten {
			passThrough(ctx, doc, key)
		}
		res.Steps = append(res.Steps, ReplayStep{
			Key:   key,
			Eaten: eaten,
			Phase: sess.Phase(),
			Text:  doc.Text(),
		})
	}
	res.Text = doc.Text()
	res.Phase = sess.Phase()
	res.State = sess.State()
	return res
}

// passThrough applies a key the session did not eat to doc.
func passThrough(ctx context.Context, doc *ime.MemoryDocument, key ime.Key) {
	if key.Modifiers.Has(ime.ModControl) || key.Modifiers.Has(ime.ModAlt) || key.Modifiers.Has(ime.ModMeta) {
		return
	}
	text := ""
	switch {
	case key.Code == ime.VKSpace:
		text = " "
	case key.Code >= ime.VK0 && key.Code <= ime.VK9:
		text = string(rune('0' + key.Code - ime.VK0))
	case key.Code == ime.VKOEMMinus:
		text = "-"
	case key.Code == ime.VKReturn:
		text = "\n"
	case key.Code == ime.VKBack:
		doc.DeleteBackward()
		return
	default:
		return
	}

	tok, err := doc.BeginWrite(ctx)
	if err != nil {
		return
	}
	defer doc.EndWrite(tok)
	if r, err := doc.InsertRangeAtSelection(tok); err == nil {
		doc.SetRangeText(tok, r, text)
	}
}
