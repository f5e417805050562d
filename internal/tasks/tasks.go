package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/gif"
	_ "image/png"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"

	"cloudrent/api/internal/config"
	"cloudrent/api/internal/email"
	"cloudrent/api/internal/services"
	"cloudrent/api/internal/storage"
	"cloudrent/api/internal/utils"
)

// Task types routed through the asynq queues.
const (
	TypePhotoProcess  = "photo:process"
	TypeMessageNotify = "message:notify"
	TypeRentalSweep   = "rental:sweep"
)

// PhotoProcessPayload identifies a staged upload awaiting normalization.
type PhotoProcessPayload struct {
	ComputerID string `json:"computer_id"`
	UploadKey  string `json:"upload_key"`
}

// NewPhotoProcessTask creates a photo processing task from a marshalled payload.
func NewPhotoProcessTask(payload []byte) *asynq.Task {
	return asynq.NewTask(TypePhotoProcess, payload, asynq.Queue("photos"))
}

// MessageNotifyPayload identifies a freshly sent message to notify about.
type MessageNotifyPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	SenderID       string `json:"sender_id"`
}

// NewMessageNotifyTask creates a message notification task from a marshalled payload.
func NewMessageNotifyTask(payload []byte) *asynq.Task {
	return asynq.NewTask(TypeMessageNotify, payload)
}

// NewRentalSweepTask creates a rental sweep task. It carries no payload; the
// handler uses the wall clock at execution time.
func NewRentalSweepTask() *asynq.Task {
	return asynq.NewTask(TypeRentalSweep, nil, asynq.MaxRetry(0))
}

// NewClient creates an asynq client bound to the same Redis the app uses.
func NewClient(rdb *redis.Client) *asynq.Client {
	opts := rdb.Options()
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// TaskProcessor holds the dependencies the task handlers need.
type TaskProcessor struct {
	cfg                 *config.Config
	emailSender         email.Sender
	storageService      storage.IPhotoStorage
	rentalService       services.IRentalService
	conversationService services.IConversationService
	computerService     services.IComputerService
	userService         services.IUserService
}

// NewTaskProcessor creates a new TaskProcessor.
func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	storageService storage.IPhotoStorage,
	rentalService services.IRentalService,
	conversationService services.IConversationService,
	computerService services.IComputerService,
	userService services.IUserService,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:                 cfg,
		emailSender:         emailSender,
		storageService:      storageService,
		rentalService:       rentalService,
		conversationService: conversationService,
		computerService:     computerService,
		userService:         userService,
	}
}

// SetupServer configures an asynq server, registers all task handlers and
// runs it. Blocks until the server is shut down.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) *asynq.Server {
	opts := rdb.Options()
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		},
		asynq.Config{
			Queues: map[string]int{
				"default": 5,
				"photos":  3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[asynq] task %s failed: %v (payload: %s)", task.Type(), err, string(task.Payload()))
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePhotoProcess, processor.HandlePhotoProcessTask)
	mux.HandleFunc(TypeMessageNotify, processor.HandleMessageNotifyTask)
	mux.HandleFunc(TypeRentalSweep, processor.HandleRentalSweepTask)

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("Could not run asynq server: %v", err)
		}
	}()

	return srv
}

// HandlePhotoProcessTask normalizes a staged upload: decode, downscale to the
// configured maximum dimension, re-encode as JPEG, attach the final key to the
// listing and drop the staging object.
func (p *TaskProcessor) HandlePhotoProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload PhotoProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal photo task payload: %v: %w", err, asynq.SkipRetry)
	}
	computerID, err := utils.ParseSixID(payload.ComputerID)
	if err != nil {
		return fmt.Errorf("invalid computer ID in photo task payload: %w", asynq.SkipRetry)
	}

	raw, err := p.storageService.Get(ctx, payload.UploadKey)
	if err != nil {
		return fmt.Errorf("failed to fetch upload %s: %w", payload.UploadKey, err)
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		log.Printf("Dropping undecodable upload %s: %v", payload.UploadKey, err)
		if delErr := p.storageService.Delete(ctx, payload.UploadKey); delErr != nil {
			log.Printf("Failed to delete bad upload %s: %v", payload.UploadKey, delErr)
		}
		return fmt.Errorf("unsupported image format or corrupt image: %w", asynq.SkipRetry)
	}

	maxDim := uint(p.cfg.PhotoMaxDimension)
	if uint(img.Bounds().Dx()) > maxDim || uint(img.Bounds().Dy()) > maxDim {
		img = resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("failed to encode photo for %s: %w", payload.UploadKey, err)
	}

	photoKey, err := p.storageService.PutPhoto(ctx, computerID.String(), buf.Bytes())
	if err != nil {
		return fmt.Errorf("failed to store processed photo for computer %s: %w", computerID.String(), err)
	}

	if err := p.computerService.AddPhoto(ctx, computerID, photoKey); err != nil {
		return fmt.Errorf("failed to attach photo %s to computer %s: %w", photoKey, computerID.String(), err)
	}

	if err := p.storageService.Delete(ctx, payload.UploadKey); err != nil {
		// The processed photo is attached; a dangling staging object is not worth a retry.
		log.Printf("Failed to delete staging upload %s: %v", payload.UploadKey, err)
	}

	log.Printf("Processed photo for computer %s (format=%s, key=%s)", computerID.String(), format, photoKey)
	return nil
}

// HandleMessageNotifyTask emails the other participant of a conversation
// about a new message.
func (p *TaskProcessor) HandleMessageNotifyTask(ctx context.Context, t *asynq.Task) error {
	var payload MessageNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal notify task payload: %v: %w", err, asynq.SkipRetry)
	}
	conversationID, err := utils.ParseSixID(payload.ConversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation ID in notify payload: %w", asynq.SkipRetry)
	}
	senderID, err := utils.ParseSixID(payload.SenderID)
	if err != nil {
		return fmt.Errorf("invalid sender ID in notify payload: %w", asynq.SkipRetry)
	}

	conversation, err := p.conversationService.FindConversationByID(ctx, conversationID, senderID)
	if err != nil {
		// Thread or membership gone; nothing to notify about.
		return fmt.Errorf("conversation %s not available: %v: %w", payload.ConversationID, err, asynq.SkipRetry)
	}

	recipient, err := p.userService.FindByID(ctx, conversation.OtherParty(senderID))
	if err != nil {
		return fmt.Errorf("recipient lookup failed for conversation %s: %v: %w", payload.ConversationID, err, asynq.SkipRetry)
	}
	sender, err := p.userService.FindByID(ctx, senderID)
	if err != nil {
		return fmt.Errorf("sender lookup failed for conversation %s: %v: %w", payload.ConversationID, err, asynq.SkipRetry)
	}

	subject := fmt.Sprintf("New message from %s on %s", sender.Name, p.cfg.AppName)
	body := fmt.Sprintf("Hi %s,\n\n%s sent you a new message:\n\n%s\n\nLog in to reply.\n",
		recipient.Name, sender.Name, conversation.LastMessage)
	raw := email.ComposeMessage(p.cfg.SmtpFromAddress, []string{recipient.Email}, subject, body)

	if err := p.emailSender.Send(ctx, []string{recipient.Email}, subject, raw); err != nil {
		return fmt.Errorf("failed to send notification for conversation %s: %w", payload.ConversationID, err)
	}
	return nil
}

// HandleRentalSweepTask completes active rentals whose end date has passed.
func (p *TaskProcessor) HandleRentalSweepTask(ctx context.Context, t *asynq.Task) error {
	count, err := p.rentalService.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("rental sweep failed: %w", err)
	}
	if count > 0 {
		log.Printf("Rental sweep completed %d expired rental(s)", count)
	}
	return nil
}
