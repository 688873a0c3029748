// Package dict loads word lists.
package dict

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"sync"
	"unicode"
	"unicode/utf8"
)

// DefaultFile is the system word list.
const DefaultFile = "/usr/share/dict/american-english"

// ErrEmpty is returned when a word list has no usable words.
var ErrEmpty = errors.New("no word in word list")

// Words is a lazily loaded word list.
// The file is read once, on first use; a failure to read it is remembered
// and reported by every later use.
type Words struct {
	load func() ([]string, error)
}

// Open creates a word list loaded from the named file on first use.
func Open(name string) *Words {
	return &Words{load: sync.OnceValues(func() ([]string, error) {
		f, err := os.Open(name)
		if err != nil {
			return nil, fmt.Errorf("couldn't open word list: %w", err)
		}
		defer f.Close()
		return Read(f)
	})}
}

// Read reads a word list with one word per line. Only words of at least
// three characters which are all lowercase letters are kept.
func Read(r io.Reader) ([]string, error) {
	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		w := sc.Text()
		if utf8.RuneCountInString(w) < 3 || !lower(w) {
			continue
		}
		words = append(words, w)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("couldn't read word list: %w", err)
	}
	return words, nil
}

func lower(w string) bool {
	for _, c := range w {
		if !unicode.IsLower(c) {
			return false
		}
	}
	return true
}

// All returns the full word list. The result must not be modified.
func (w *Words) All() ([]string, error) {
	return w.load()
}

// Random selects a random word.
func (w *Words) Random() (string, error) {
	words, err := w.load()
	if err != nil {
		return "", err
	}
	if len(words) == 0 {
		return "", ErrEmpty
	}
	return words[rand.IntN(len(words))], nil
}
