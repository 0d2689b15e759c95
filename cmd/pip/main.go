// Command pip is a terminal companion: chat with Pip, practice words, and
// tell stories, with spoken replies through the system audio output.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/lumikids/pip/pkg/audio"
	"github.com/lumikids/pip/pkg/core"
	"github.com/lumikids/pip/pkg/core/providers/gemini"
	"github.com/lumikids/pip/pkg/core/types"
	"github.com/lumikids/pip/pkg/engine"
	"github.com/lumikids/pip/pkg/session"
	"github.com/lumikids/pip/pkg/story"
	"github.com/lumikids/pip/pkg/therapy"
	"github.com/lumikids/pip/pkg/voice/tts"
)

type app struct {
	doc      *session.Document
	engine   *engine.Engine
	story    *story.Controller
	therapy  *therapy.Controller
	speech   tts.Provider
	player   *audio.Player
	out      io.Writer
	speak    bool
	voice    string
	storySes *story.Session
}

func main() {
	var (
		chatModel   = flag.String("model", "gemini-2.5-flash", "chat model")
		speechModel = flag.String("speech-model", "gemini-2.5-flash-preview-tts", "speech synthesis model")
		voice       = flag.String("voice", tts.DefaultGeminiVoice, "speech voice")
		mute        = flag.Bool("mute", false, "disable spoken replies")
	)
	flag.Parse()

	_ = godotenv.Load()

	apiKey := strings.TrimSpace(os.Getenv("PIP_GEMINI_API_KEY"))
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "pip: PIP_GEMINI_API_KEY is required")
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := gemini.New(apiKey)

	a := &app{
		doc:     session.NewDocument(),
		engine:  engine.New(provider, *chatModel, engine.WithLogger(logger)),
		story:   story.NewController(provider, *chatModel, story.WithLogger(logger)),
		therapy: therapy.NewController(provider, *chatModel, therapy.WithLogger(logger)),
		speech:  tts.NewGemini(provider, *speechModel),
		player:  audio.NewPlayer(),
		out:     os.Stdout,
		speak:   !*mute,
		voice:   *voice,
	}

	fmt.Fprintf(a.out, "You're chatting with %s. Type /story, /practice, or /quit.\n", a.doc.Character.Name)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(a.out, "> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit" || line == "/exit":
			a.player.Stop()
			return
		case line == "/story":
			a.runStory(scanner)
		case line == "/practice":
			a.runPractice(scanner)
		default:
			a.chat(line)
		}
	}
}

func (a *app) chat(message string) {
	ctx := context.Background()
	history := append(a.doc.HistoryMessages(), types.NewTextMessage("user", message))

	result, err := a.engine.Run(ctx, engine.Request{
		History: history,
		System:  fmt.Sprintf("You are %s, a warm companion for a young child. Keep replies to a sentence or two.", a.doc.Character.Name),
		Toolset: engine.ChatToolset(),
	})
	if err != nil {
		a.printRemoteError(err)
		return
	}

	a.doc.ApplyEffects(result.Effects)
	a.doc.AppendTurn("user", message)
	a.doc.AppendTurn("assistant", result.Utterance)

	fmt.Fprintf(a.out, "%s: %s\n", a.doc.Character.Name, result.Utterance)
	a.say(result.Utterance)
}

func (a *app) runStory(scanner *bufio.Scanner) {
	ctx := context.Background()
	a.storySes = &story.Session{}

	fmt.Fprintln(a.out, "What should the story be about?")
	fmt.Fprint(a.out, "> ")
	if !scanner.Scan() {
		return
	}
	theme := strings.TrimSpace(scanner.Text())
	if theme == "" {
		theme = "a cozy adventure"
	}

	items := [3]string{"Map", "Key", "Compass"}
	segment, err := a.story.Start(ctx, a.storySes, theme, "our hero", "fox", items)
	if err != nil {
		a.printRemoteError(err)
		return
	}
	fmt.Fprintln(a.out, segment)
	a.say(segment)

	for a.storySes.State() == story.StateInProgress {
		fmt.Fprintf(a.out, "Pick an item %v (or /stop):\n> ", a.storySes.RemainingItems)
		if !scanner.Scan() {
			return
		}
		choice := strings.TrimSpace(scanner.Text())
		if choice == "/stop" {
			return
		}

		segment, err := a.story.Continue(ctx, a.storySes, choice)
		if errors.Is(err, story.ErrUnknownItem) {
			fmt.Fprintln(a.out, "That item isn't in the bag!")
			continue
		}
		if err != nil {
			a.printRemoteError(err)
			return
		}
		fmt.Fprintln(a.out, segment)
		a.say(segment)
	}
	fmt.Fprintln(a.out, "The end!")
}

func (a *app) runPractice(scanner *bufio.Scanner) {
	ctx := context.Background()

	task := a.therapy.GenerateTask(ctx, a.doc.Tasks, therapy.GenerateOptions{
		TargetWords:   a.doc.TargetWords,
		MasteredWords: a.doc.MasteredWords,
	})
	a.doc.Tasks = append(a.doc.Tasks, task)

	fmt.Fprintf(a.out, "Let's practice the word %q (the %s sound).\n", task.Word, task.TargetPhoneme)
	fmt.Fprintln(a.out, "Record your attempt and enter the file path (WAV), or /skip:")

	for {
		fmt.Fprint(a.out, "> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "/skip" || line == "" {
			return
		}

		recording, err := os.ReadFile(line)
		if err != nil {
			fmt.Fprintf(a.out, "could not read %s: %v\n", line, err)
			continue
		}

		assessment, err := a.therapy.AssessRecording(ctx, recording, "audio/wav", task)
		if err != nil {
			a.printRemoteError(err)
			return
		}
		a.doc.PhonemeStats.RecordAttempt(task.TargetPhoneme, task.Status == therapy.StatusMastered)

		fmt.Fprintf(a.out, "%s: %s\n", a.doc.Character.Name, assessment.Utterance)
		a.say(assessment.Utterance)

		if task.Status == therapy.StatusMastered {
			fmt.Fprintln(a.out, "Word mastered!")
			return
		}
		if task.SkipAvailable() {
			fmt.Fprintln(a.out, "(You can /skip to a new word whenever you like.)")
		}
	}
}

// say synthesizes and plays an utterance; playback problems only print.
func (a *app) say(text string) {
	if !a.speak || strings.TrimSpace(text) == "" {
		return
	}

	clip, err := a.speech.Synthesize(context.Background(), text, tts.Options{Voice: a.voice})
	if err != nil {
		fmt.Fprintf(a.out, "(speech unavailable: %v)\n", err)
		return
	}

	buf, err := audio.DecodeSamples(clip.PCM, clip.SampleRate)
	if err != nil {
		fmt.Fprintf(a.out, "(speech decode failed: %v)\n", err)
		return
	}
	if err := a.player.Play(buf); err != nil {
		fmt.Fprintf(a.out, "(playback failed: %v)\n", err)
	}
}

func (a *app) printRemoteError(err error) {
	var remote *core.RemoteError
	if errors.As(err, &remote) {
		fmt.Fprintf(a.out, "%s (retry in %s)\n", remote.Message, remote.RetryDelay)
		return
	}
	fmt.Fprintf(a.out, "error: %v\n", err)
}
