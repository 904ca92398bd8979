package question

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed banks/*.yaml
var embeddedBanks embed.FS

// BankEntry is one curated question as stored in a YAML bank file.
type BankEntry struct {
	Difficulty  string   `yaml:"difficulty"`
	Category    string   `yaml:"category"`
	Text        string   `yaml:"text"`
	Answer      string   `yaml:"answer"`
	Wrong       []string `yaml:"wrong"`
	Explanation string   `yaml:"explanation"`
}

// BankFile is the top-level layout of a bank file.
type BankFile struct {
	Subject string      `yaml:"subject"`
	Entries []BankEntry `yaml:"entries"`
}

// Bank serves questions from a fixed list of curated entries.
type Bank struct {
	subject string
	entries []BankEntry

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewBank validates entries and builds a bank for subject.
func NewBank(subject string, entries []BankEntry, rnd *rand.Rand) (*Bank, error) {
	for i, e := range entries {
		if strings.TrimSpace(e.Text) == "" || strings.TrimSpace(e.Answer) == "" {
			return nil, fmt.Errorf("bank %s entry %d: text and answer are required", subject, i)
		}
		if len(e.Wrong) != 3 {
			return nil, fmt.Errorf("bank %s entry %d: need exactly 3 wrong answers, got %d", subject, i, len(e.Wrong))
		}
		if !ValidDifficulty(e.Difficulty) {
			return nil, fmt.Errorf("bank %s entry %d: unknown difficulty %q", subject, i, e.Difficulty)
		}
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Bank{subject: subject, entries: entries, rnd: rnd}, nil
}

func (b *Bank) Generate(_ context.Context, difficulty, category string) (Question, error) {
	difficulty = NormalizeDifficulty(difficulty)

	var pool []int
	for i, e := range b.entries {
		if e.Difficulty != difficulty {
			continue
		}
		if category != "" && !strings.EqualFold(e.Category, category) {
			continue
		}
		pool = append(pool, i)
	}
	if len(pool) == 0 {
		return Question{}, fmt.Errorf("%s %s %q: %w", b.subject, difficulty, category, ErrNoQuestions)
	}

	b.mu.Lock()
	e := b.entries[pool[b.rnd.Intn(len(pool))]]
	b.mu.Unlock()

	return Question{
		ID:            uuid.NewString(),
		Subject:       b.subject,
		Category:      e.Category,
		Difficulty:    e.Difficulty,
		Text:          e.Text,
		CorrectAnswer: e.Answer,
		WrongAnswers:  [3]string{e.Wrong[0], e.Wrong[1], e.Wrong[2]},
		Explanation:   e.Explanation,
	}, nil
}

func (b *Bank) Check(q Question, answer string) bool {
	return textCheck(q, answer)
}

// Size returns the number of entries in the bank.
func (b *Bank) Size() int {
	return len(b.entries)
}

// LoadBanks reads every *.yaml file in the embedded banks and, when dir is
// not empty, in dir. A file in dir replaces the embedded bank for the same
// subject.
func LoadBanks(dir string, rnd *rand.Rand) (map[string]*Bank, error) {
	files, err := readBankFiles(embeddedBanks, "banks")
	if err != nil {
		return nil, err
	}
	if dir != "" {
		overrides, err := readBankFiles(os.DirFS(dir), ".")
		if err != nil {
			return nil, fmt.Errorf("read bank override dir %s: %w", dir, err)
		}
		for subject, f := range overrides {
			files[subject] = f
		}
	}

	banks := make(map[string]*Bank, len(files))
	for subject, f := range files {
		bank, err := NewBank(subject, f.Entries, rnd)
		if err != nil {
			return nil, err
		}
		banks[subject] = bank
	}
	return banks, nil
}

func readBankFiles(fsys fs.FS, root string) (map[string]BankFile, error) {
	matches, err := fs.Glob(fsys, path.Join(root, "*.yaml"))
	if err != nil {
		return nil, err
	}
	files := make(map[string]BankFile, len(matches))
	for _, name := range matches {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read bank %s: %w", name, err)
		}
		var f BankFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode bank %s: %w", name, err)
		}
		if f.Subject == "" {
			f.Subject = strings.TrimSuffix(path.Base(name), ".yaml")
		}
		files[strings.ToLower(f.Subject)] = f
	}
	return files, nil
}
