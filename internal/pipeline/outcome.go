package pipeline

import (
	"errors"
	"time"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/ledger"
	"github.com/joseph-ayodele/invoice-intake/internal/llm"
	"github.com/joseph-ayodele/invoice-intake/internal/ocr"
	"github.com/joseph-ayodele/invoice-intake/internal/storage"
)

// FailureKind is the category of a failed run.
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureConversion FailureKind = "conversion"
	FailureOCR        FailureKind = "ocr"
	FailureModel      FailureKind = "model"
	FailureParse      FailureKind = "parse"
	FailureUpload     FailureKind = "upload"
	FailurePermission FailureKind = "permission"
	FailureLedger     FailureKind = "ledger"

	// FailureUnavailable marks a document that never entered the pipeline
	// because the job queue refused it.
	FailureUnavailable FailureKind = "unavailable"
)

// stageKinds is the kind assigned to an error a stage returns that carries no
// typed classification, such as a deadline.
var stageKinds = map[constants.Stage]FailureKind{
	constants.StageClassify:  FailureConversion,
	constants.StageRasterize: FailureConversion,
	constants.StageOCR:       FailureOCR,
	constants.StageExtract:   FailureModel,
	constants.StageName:      FailureParse,
	constants.StagePublish:   FailureUpload,
	constants.StageLedger:    FailureLedger,
}

// Classify maps err onto a FailureKind, falling back to the default of stage.
func Classify(stage constants.Stage, err error) FailureKind {
	var (
		convErr  *ocr.ConversionError
		modelErr *llm.ModelCallError
		parseErr *llm.ExtractionParseError
		upErr    *storage.UploadError
		permErr  *storage.PermissionError
		ledErr   *ledger.WriteError
	)
	switch {
	case err == nil:
		return FailureNone
	case errors.As(err, &convErr):
		return FailureConversion
	case errors.As(err, &parseErr):
		return FailureParse
	case errors.As(err, &modelErr):
		return FailureModel
	case errors.As(err, &permErr):
		return FailurePermission
	case errors.As(err, &upErr):
		return FailureUpload
	case errors.As(err, &ledErr):
		return FailureLedger
	}
	if k, ok := stageKinds[stage]; ok {
		return k
	}
	return FailureOCR
}

var userMessages = map[FailureKind]string{
	FailureNone:        "Данные извлечены и записаны в таблицу, файл переименован и сохранен на Диск.",
	FailureConversion:  "Не удалось открыть документ. Проверьте, что файл не поврежден.",
	FailureOCR:         "Не удалось распознать текст в документе.",
	FailureModel:       "Сервис AI сейчас недоступен, попробуйте позже.",
	FailureParse:       "Произошла ошибка при извлечении данных через AI.",
	FailureUpload:      "Не удалось сохранить файл на Диск.",
	FailurePermission:  "Файл сохранен на Диск, но не удалось открыть доступ по ссылке.",
	FailureLedger:      "Файл сохранен на Диск, но не удалось записать данные в таблицу.",
	FailureUnavailable: "Сервис сейчас перегружен, отправьте файл еще раз позже.",
}

// Outcome is the result of one pipeline run. Fields after Err are populated
// as far as the run progressed.
type Outcome struct {
	RunID string
	State constants.RunState
	Stage constants.Stage // failing stage; empty on success
	Kind  FailureKind
	Err   error

	Document   constants.DocumentKind
	Record     llm.InvoiceRecord
	Raw        []byte
	Name       string
	Artifact   storage.PublishedArtifact
	PageErrors []*ocr.PageError
	Duration   time.Duration
}

// Rejected is the outcome of a document the queue did not accept.
func Rejected(err error) Outcome {
	return Outcome{State: constants.StateFailed, Kind: FailureUnavailable, Err: err}
}

// OK reports whether the run reached Done.
func (o Outcome) OK() bool { return o.State == constants.StateDone }

// UserMessage is the single reply shown to the sender for this outcome.
func (o Outcome) UserMessage() string {
	if o.OK() {
		return userMessages[FailureNone]
	}
	if msg, ok := userMessages[o.Kind]; ok && o.Kind != FailureNone {
		return msg
	}
	return userMessages[FailureOCR]
}
