package fleet

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"

	"github.com/repoteer/repoteer/internal/manifest"
	"github.com/repoteer/repoteer/internal/utils"
)

const (
	pendingStatusTextConstant          = "pending"
	cloneProgressTextConstant          = "cloning"
	pullProgressTextConstant           = "pulling"
	pushProgressTextConstant           = "pushing"
	statusProgressTextConstant         = "inspecting"
	progressSuffixConstant             = "..."
	succeededSuffixTemplateConstant    = "%s succeeded"
	skippedSuffixTemplateConstant      = "%s skipped (%s)"
	failedSuffixTemplateConstant       = "%s failed: %s"
	repositoryLineTemplateConstant     = "%s  %s\n"
	ansiCursorUpTemplateConstant       = "\x1b[%dA"
	ansiEraseLineConstant              = "\r\x1b[2K"
	ansiGreenColorConstant             = "\x1b[32m"
	ansiYellowColorConstant            = "\x1b[33m"
	ansiRedColorConstant               = "\x1b[31m"
	ansiDimColorConstant               = "\x1b[2m"
	ansiResetColorConstant             = "\x1b[0m"
	summaryLineTemplateConstant        = "\n%d succeeded, %d skipped, %d failed\n"
	failureTableRepositoryHeaderString = "REPOSITORY"
	failureTableOperationHeaderString  = "OPERATION"
	failureTableReasonHeaderString     = "REASON"
	failureListTitleConstant           = "\nFailed operations:\n"
)

var operationProgressTexts = map[OperationKind]string{
	OperationClone:  cloneProgressTextConstant,
	OperationPull:   pullProgressTextConstant,
	OperationPush:   pushProgressTextConstant,
	OperationStatus: statusProgressTextConstant,
}

// LiveReporter consumes the shared event stream and maintains one display
// region per repository. Regions for different repositories update
// independently; within one repository's region events render in emission
// order. The reporter owns the display exclusively, so concurrent runners
// never write to the terminal themselves.
type LiveReporter struct {
	writer            io.Writer
	colorEnabled      bool
	repositoryOrder   []string
	displayNames      map[string]string
	statusTexts       map[string]string
	statusColors      map[string]string
	nameColumnWidth   int
	renderedLineCount int
}

// NewLiveReporter constructs a reporter pre-seeded with one region per
// manifest repository.
func NewLiveReporter(writer io.Writer, colorEnabled bool, repositories []manifest.RepoSpec) *LiveReporter {
	reporter := &LiveReporter{
		writer:       utils.NewFlushingWriter(writer),
		colorEnabled: colorEnabled,
		displayNames: map[string]string{},
		statusTexts:  map[string]string{},
		statusColors: map[string]string{},
	}

	for _, repository := range repositories {
		repositoryPath := repository.Path
		reporter.repositoryOrder = append(reporter.repositoryOrder, repositoryPath)
		reporter.displayNames[repositoryPath] = repository.Name()
		reporter.statusTexts[repositoryPath] = pendingStatusTextConstant
		reporter.statusColors[repositoryPath] = ansiDimColorConstant
		nameWidth := runewidth.StringWidth(repository.Name())
		if nameWidth > reporter.nameColumnWidth {
			reporter.nameColumnWidth = nameWidth
		}
	}

	return reporter
}

// Consume drains the event stream until it closes, updating the display after
// every event. It is intended to run on its own goroutine; the channel buffer
// decouples slow redraws from the operation pipeline.
func (reporter *LiveReporter) Consume(events <-chan ProgressEvent) {
	for event := range events {
		reporter.applyEvent(event)
	}
}

func (reporter *LiveReporter) applyEvent(event ProgressEvent) {
	statusText, statusColor := reporter.describeEvent(event)
	reporter.statusTexts[event.RepositoryPath] = statusText
	reporter.statusColors[event.RepositoryPath] = statusColor

	if reporter.colorEnabled {
		reporter.repaintRegions()
		return
	}

	// Without color control sequences the view degrades to append-only
	// lines, still FIFO per repository.
	fmt.Fprintf(reporter.writer, repositoryLineTemplateConstant, reporter.paddedName(event.RepositoryPath), statusText)
}

func (reporter *LiveReporter) describeEvent(event ProgressEvent) (string, string) {
	if event.Type == ProgressEventOperationStarted {
		return operationProgressTexts[event.Operation] + progressSuffixConstant, ansiDimColorConstant
	}

	outcome := event.Outcome
	if outcome == nil {
		return pendingStatusTextConstant, ansiDimColorConstant
	}

	switch outcome.Status {
	case OutcomeSucceeded:
		if outcome.Operation == OperationStatus && len(outcome.Reason) > 0 {
			return outcome.Reason, ansiGreenColorConstant
		}
		return fmt.Sprintf(succeededSuffixTemplateConstant, outcome.Operation), ansiGreenColorConstant
	case OutcomeSkipped:
		return fmt.Sprintf(skippedSuffixTemplateConstant, outcome.Operation, outcome.Reason), ansiYellowColorConstant
	default:
		return fmt.Sprintf(failedSuffixTemplateConstant, outcome.Operation, outcome.Reason), ansiRedColorConstant
	}
}

func (reporter *LiveReporter) repaintRegions() {
	var screenBuilder strings.Builder

	if reporter.renderedLineCount > 0 {
		fmt.Fprintf(&screenBuilder, ansiCursorUpTemplateConstant, reporter.renderedLineCount)
	}

	for _, repositoryPath := range reporter.repositoryOrder {
		screenBuilder.WriteString(ansiEraseLineConstant)
		screenBuilder.WriteString(reporter.paddedName(repositoryPath))
		screenBuilder.WriteString("  ")
		screenBuilder.WriteString(reporter.statusColors[repositoryPath])
		screenBuilder.WriteString(reporter.statusTexts[repositoryPath])
		screenBuilder.WriteString(ansiResetColorConstant)
		screenBuilder.WriteString("\n")
	}

	reporter.renderedLineCount = len(reporter.repositoryOrder)
	io.WriteString(reporter.writer, screenBuilder.String())
}

func (reporter *LiveReporter) paddedName(repositoryPath string) string {
	displayName := reporter.displayNames[repositoryPath]
	padding := reporter.nameColumnWidth - runewidth.StringWidth(displayName)
	if padding <= 0 {
		return displayName
	}
	return displayName + strings.Repeat(" ", padding)
}

// RenderSummary writes the final run summary: outcome counts and, when any
// operation failed, a table enumerating every failure with its repository,
// operation, and reason.
func RenderSummary(writer io.Writer, result AggregateResult) {
	runSummary := result.Summary()
	fmt.Fprintf(writer, summaryLineTemplateConstant, runSummary.Succeeded, runSummary.Skipped, runSummary.Failed)

	failures := result.Failures()
	if len(failures) == 0 {
		return
	}

	io.WriteString(writer, failureListTitleConstant)
	failureTable := tablewriter.NewWriter(writer)
	failureTable.SetHeader([]string{failureTableRepositoryHeaderString, failureTableOperationHeaderString, failureTableReasonHeaderString})
	for _, failure := range failures {
		failureTable.Append([]string{failure.RepositoryName, string(failure.Operation), failure.Reason})
	}
	failureTable.Render()
}
