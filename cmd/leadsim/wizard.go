package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	appI18n "github.com/pavelanni/leadsim/internal/i18n"
	"github.com/pavelanni/leadsim/internal/model"
	"github.com/pavelanni/leadsim/internal/session"
	"github.com/pavelanni/leadsim/internal/simulation"
)

// endOfResponse is the line that finishes a multi-line response.
const endOfResponse = "."

// wizard is the terminal front end of a simulation. It only moves text
// between the participant and the engine.
type wizard struct {
	engine *simulation.Engine
	in     *bufio.Scanner
	out    io.Writer
}

func newWizard(engine *simulation.Engine, in io.Reader, out io.Writer) *wizard {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &wizard{engine: engine, in: sc, out: out}
}

// Run plays the simulation until every scenario is answered or input ends.
func (w *wizard) Run(ctx context.Context, name string) error {
	w.println(appI18n.T(ctx, "AppTitle"))
	w.println(appI18n.T(ctx, "Welcome"))
	w.println("")

	resumed, err := w.resume(ctx)
	if err != nil {
		return err
	}
	if !resumed {
		if name == "" {
			w.println(appI18n.Td(ctx, "AskName", map[string]any{"Default": simulation.DefaultUserName}))
			name, _ = w.readLine()
		}
		if err := w.engine.Start(ctx, name); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
	}

	for !w.engine.Done() {
		done, err := w.playScenario(ctx)
		if err != nil {
			return err
		}
		if done {
			// Input ended; progress is already saved.
			return nil
		}
	}

	w.printReport(ctx, w.engine.Report())
	return nil
}

func (w *wizard) resume(ctx context.Context) (bool, error) {
	ok, err := w.engine.Resume(ctx)
	if errors.Is(err, session.ErrInvalidSnapshot) {
		w.println(appI18n.T(ctx, "ProgressDiscarded"))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load progress: %w", err)
	}
	if !ok {
		return false, nil
	}

	done, total := len(w.engine.Entries()), w.engine.Report().TotalScenarios
	w.println(appI18n.Td(ctx, "ResumePrompt", map[string]any{"Done": done, "Total": total}))
	answer, _ := w.readLine()
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "n", "no", "н", "нет":
		return false, nil
	}
	return true, nil
}

// playScenario shows the current scenario, collects a response and prints
// the feedback. It reports true when input ended.
func (w *wizard) playScenario(ctx context.Context) (bool, error) {
	sc, _ := w.engine.Current()
	n, total := w.engine.Position()
	text, err := w.engine.ScenarioText(ctx)
	if err != nil {
		return false, err
	}

	w.println("")
	w.println(appI18n.Td(ctx, "ScenarioHeader", map[string]any{"N": n, "Total": total, "Title": sc.Title}))
	w.println(strings.Repeat("=", 60))
	w.println(text)
	if len(sc.LearningObjectives) > 0 {
		w.println("")
		w.println(appI18n.Td(ctx, "Objectives", map[string]any{"List": strings.Join(sc.LearningObjectives, ", ")}))
	}

	for {
		w.println("")
		w.println(appI18n.T(ctx, "EnterResponse"))
		response, eof := w.readResponse()
		if eof && strings.TrimSpace(response) == "" {
			return true, nil
		}

		w.println(appI18n.T(ctx, "Evaluating"))
		res, err := w.engine.Submit(ctx, response)
		if errors.Is(err, simulation.ErrEmptyResponse) {
			w.println(appI18n.T(ctx, "EmptyResponse"))
			continue
		}
		if err != nil {
			return false, err
		}

		w.printEvaluation(ctx, res)
		if eof {
			return true, nil
		}
		break
	}

	if !w.engine.Done() {
		w.println("")
		w.println(appI18n.T(ctx, "NextPrompt"))
		if _, ok := w.readLine(); !ok {
			return true, nil
		}
	}
	return false, nil
}

func (w *wizard) printEvaluation(ctx context.Context, res simulation.Result) {
	ev := res.Evaluation
	w.println("")
	if ev.Fallback {
		w.println(appI18n.T(ctx, "FallbackNotice"))
	}
	w.println(appI18n.T(ctx, "Strengths") + ":")
	w.println(ev.Strengths)
	w.println("")
	w.println(appI18n.T(ctx, "Suggestions") + ":")
	w.println(ev.Suggestions)
	if ev.Score != nil {
		w.println("")
		w.println(appI18n.Td(ctx, "ScoreLine", map[string]any{"Score": formatScore(*ev.Score)}))
	}
	if res.SaveErr != nil {
		w.println(appI18n.T(ctx, "SaveWarning"))
	}
}

func (w *wizard) printReport(ctx context.Context, r model.Report) {
	w.println("")
	w.println(appI18n.Td(ctx, "ReportTitle", map[string]any{"Name": r.UserName}))
	w.println(strings.Repeat("=", 60))
	w.println(appI18n.Tp(ctx, "ScenariosCompleted", r.Completed))
	for _, line := range r.Lines {
		score := "-"
		if line.Score != nil {
			score = formatScore(*line.Score)
		}
		marker := ""
		if line.Fallback {
			marker = " *"
		}
		w.println(fmt.Sprintf("  %2d. %-45s %s%s", line.ScenarioID, line.ScenarioTitle, score, marker))
	}
	if r.Completed > 0 {
		w.println(appI18n.Td(ctx, "AverageScore", map[string]any{"Score": formatScore(r.AverageScore)}))
	}
	if r.FallbackCount > 0 {
		w.println(appI18n.Tp(ctx, "OfflineCount", r.FallbackCount))
	}
	w.println(appI18n.Td(ctx, "TimeSpent", map[string]any{"Duration": r.Duration.Round(time.Second).String()}))
	w.println("")
	w.println(appI18n.T(ctx, "Goodbye"))
}

// readResponse reads lines until a line holding only endOfResponse or the
// end of input. eof reports the latter.
func (w *wizard) readResponse() (text string, eof bool) {
	var lines []string
	for {
		line, ok := w.readLine()
		if !ok {
			return strings.Join(lines, "\n"), true
		}
		if strings.TrimSpace(line) == endOfResponse {
			return strings.Join(lines, "\n"), false
		}
		lines = append(lines, line)
	}
}

func (w *wizard) readLine() (string, bool) {
	if !w.in.Scan() {
		return "", false
	}
	return strings.TrimRight(w.in.Text(), "\r"), true
}

func (w *wizard) println(s string) {
	fmt.Fprintln(w.out, s)
}

func formatScore(s float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.1f", s), ".0")
}
