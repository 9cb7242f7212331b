package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	msgGreeting   = "Привет! Отправь мне счет (изображение или PDF), я распознаю текст, извлеку нужную информацию и сохраню ее в таблицу и файл на Диск."
	msgNoFile     = "Не удалось определить файл."
	msgDownload   = "Не удалось скачать файл, попробуйте отправить его еще раз."
	maxFileBytes  = 20 << 20 // Bot API download limit
	photoFilename = "photo.jpg"

	// maxInflightUpdates bounds updates downloaded or waiting on the queue at once.
	maxInflightUpdates = 4
)

// botAPI is the part of *tgbotapi.BotAPI used by the source.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetFileDirectURL(fileID string) (string, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	StopReceivingUpdates()
}

// TelegramSource long-polls the Bot API for documents and photos.
type TelegramSource struct {
	bot         botAPI
	http        *http.Client
	pollTimeout int
	logger      *slog.Logger
	inflight    chan struct{}
}

func NewTelegramSource(token string, pollTimeout int, logger *slog.Logger) (*TelegramSource, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("intake.telegram.authorized", "bot", bot.Self.UserName)
	return newTelegramSource(bot, &http.Client{Timeout: 60 * time.Second}, pollTimeout, logger), nil
}

func newTelegramSource(bot botAPI, client *http.Client, pollTimeout int, logger *slog.Logger) *TelegramSource {
	if logger == nil {
		logger = slog.Default()
	}
	if pollTimeout <= 0 {
		pollTimeout = 60
	}
	return &TelegramSource{
		bot:         bot,
		http:        client,
		pollTimeout: pollTimeout,
		logger:      logger,
		inflight:    make(chan struct{}, maxInflightUpdates),
	}
}

func (s *TelegramSource) Run(ctx context.Context, handle Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = s.pollTimeout
	updates := s.bot.GetUpdatesChan(u)
	defer s.bot.StopReceivingUpdates()

	// Updates are handled concurrently, at most maxInflightUpdates at a time.
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return errors.New("telegram: updates channel closed")
			}
			select {
			case s.inflight <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			wg.Add(1)
			go func() {
				defer func() {
					<-s.inflight
					wg.Done()
				}()
				s.handleUpdate(ctx, upd, handle)
			}()
		}
	}
}

func (s *TelegramSource) handleUpdate(ctx context.Context, upd tgbotapi.Update, handle Handler) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID, msgID := msg.Chat.ID, msg.MessageID
	log := s.logger.With("chat_id", chatID, "message_id", msgID)
	reply := func(_ context.Context, text string) error {
		m := tgbotapi.NewMessage(chatID, text)
		m.ReplyToMessageID = msgID
		_, err := s.bot.Send(m)
		return err
	}

	if msg.IsCommand() {
		if msg.Command() == "start" {
			if err := reply(ctx, msgGreeting); err != nil {
				log.Warn("intake.telegram.reply_failed", "error", err)
			}
		}
		return
	}

	fileID, filename, mimeType := attachment(msg)
	if fileID == "" {
		if err := reply(ctx, msgNoFile); err != nil {
			log.Warn("intake.telegram.reply_failed", "error", err)
		}
		return
	}

	data, err := s.download(ctx, fileID)
	if err != nil {
		log.Error("intake.telegram.download_failed", "file_id", fileID, "error", err)
		if err := reply(ctx, msgDownload); err != nil {
			log.Warn("intake.telegram.reply_failed", "error", err)
		}
		return
	}
	log.Info("intake.telegram.received", "filename", filename, "mime_type", mimeType, "bytes", len(data))

	handle(ctx, Envelope{
		Data:      data,
		MimeType:  mimeType,
		Filename:  filename,
		RequestID: fmt.Sprintf("tg-%d-%d", chatID, msgID),
		Reply:     reply,
	})
}

// attachment picks the document, or else the largest photo size.
func attachment(msg *tgbotapi.Message) (fileID, filename, mimeType string) {
	if d := msg.Document; d != nil {
		return d.FileID, d.FileName, d.MimeType
	}
	if len(msg.Photo) == 0 {
		return "", "", ""
	}
	best := msg.Photo[0]
	for _, p := range msg.Photo[1:] {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best.FileID, photoFilename, "image/jpeg"
}

func (s *TelegramSource) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := s.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", path.Base(req.URL.Path), resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxFileBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxFileBytes)
	}
	return data, nil
}
