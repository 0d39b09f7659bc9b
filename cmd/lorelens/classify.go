package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MrWong99/lorelens/internal/app"
	"github.com/MrWong99/lorelens/internal/character"
	"github.com/MrWong99/lorelens/internal/dialogue"
	"github.com/MrWong99/lorelens/internal/session"
)

func newClassifyCmd(v *viper.Viper) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify [file]",
		Short: "Classify OCR captures and resolve their speakers",
		Long: `Classify OCR captures read from file, or stdin when no file is given.
Captures are separated by blank lines; a capture may span several lines,
e.g. a cutscene speaker above the spoken line.

All captures run through one session, so speaker memory carries across
them just as it does on the server. Nothing is persisted.

Example:
  printf 'Cloud: Let'\''s mosey.\n\nTifa\nCloud, wait!\n' | lorelens classify --characters ff7.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runClassify(cmd.Context(), v, in, cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per capture")
	return cmd
}

func runClassify(ctx context.Context, v *viper.Viper, in io.Reader, out io.Writer, asJSON bool) error {
	cfg, _, err := loadConfig(v)
	if err != nil {
		return err
	}

	loader := session.StaticLoader(&character.File{})
	if cfg.Characters.Path != "" {
		loader = session.FileLoader(cfg.Characters.Path)
	}
	sess, err := session.New(ctx, loader, app.SessionOptions(cfg)...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	blocks, err := readBlocks(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	for _, b := range blocks {
		line := sess.Process(ctx, b)
		if asJSON {
			if err := enc.Encode(line); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintln(out, formatLine(line))
	}
	return nil
}

// readBlocks splits r into captures separated by blank lines.
func readBlocks(r io.Reader) ([]string, error) {
	var (
		blocks []string
		cur    []string
	)
	flush := func() {
		if len(cur) > 0 {
			blocks = append(blocks, strings.Join(cur, "\n"))
			cur = cur[:0]
		}
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		l := sc.Text()
		if strings.TrimSpace(l) == "" {
			flush()
			continue
		}
		cur = append(cur, l)
	}
	flush()
	return blocks, sc.Err()
}

var (
	typeColor = map[dialogue.Type]*color.Color{
		dialogue.TypeNormal:    color.New(color.FgWhite),
		dialogue.TypeCharacter: color.New(color.FgCyan),
		dialogue.TypeChoice:    color.New(color.FgYellow),
		dialogue.TypeSystem:    color.New(color.FgMagenta),
	}
	kindColor = map[dialogue.SpeakerKind]*color.Color{
		dialogue.SpeakerKnown:       color.New(color.FgGreen, color.Bold),
		dialogue.SpeakerProvisional: color.New(color.FgYellow, color.Bold),
		dialogue.SpeakerMystery:     color.New(color.FgRed, color.Bold),
	}
	dim = color.New(color.Faint)
)

// formatLine renders one classified line for a terminal.
func formatLine(l dialogue.DialogueLine) string {
	if l.Empty {
		return dim.Sprint("[empty]")
	}

	var b strings.Builder
	tc, ok := typeColor[l.Type]
	if !ok {
		tc = typeColor[dialogue.TypeNormal]
	}
	b.WriteString(tc.Sprintf("[%s]", l.Type))
	if l.Deferred {
		b.WriteString(dim.Sprint(" (deferred)"))
	}
	if sp := l.Speaker; sp != nil {
		b.WriteByte(' ')
		b.WriteString(kindColor[sp.Kind].Sprint(sp.Name))
		b.WriteString(dim.Sprintf(" (%s", sp.Kind))
		if sp.Match != "" {
			b.WriteString(dim.Sprintf(", %s", sp.Match))
		}
		b.WriteString(dim.Sprint(")"))
	}
	if len(l.Choices) > 0 {
		for i, c := range l.Choices {
			fmt.Fprintf(&b, "\n  %d. %s", i+1, c)
		}
		return b.String()
	}
	b.WriteString(": ")
	b.WriteString(l.Content)
	return b.String()
}
