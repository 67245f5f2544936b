// Package whatsapp delivers rendered invitations over WhatsApp.
package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

type Config struct {
	DataDir string
	// DefaultCountryCode replaces the trunk prefix of national numbers.
	DefaultCountryCode string
}

type Service struct {
	client *whatsmeow.Client
	cfg    *Config
	log    zerolog.Logger
}

// NewService opens the device store and creates the client. The session
// created by the first login is reused afterwards.
func NewService(ctx context.Context, cfg *Config, log zerolog.Logger) (*Service, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(cfg.DataDir, "whatsmeow.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	service := &Service{
		client: whatsmeow.NewClient(deviceStore, nil),
		cfg:    cfg,
		log:    log.With().Str("component", "WhatsApp").Logger(),
	}
	service.client.AddEventHandler(service.eventHandler)
	return service, nil
}

// NormalizePhoneNumber strips formatting from a phone number and turns a
// national number with a leading 0 into international form using
// countryCode.
func NormalizePhoneNumber(phoneNumber, countryCode string) string {
	var b strings.Builder
	for _, r := range phoneNumber {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	phoneNumber = b.String()

	if strings.HasPrefix(phoneNumber, "00") {
		return phoneNumber[2:]
	}
	if countryCode == "" {
		return phoneNumber
	}
	if strings.HasPrefix(phoneNumber, "0") {
		return countryCode + phoneNumber[1:]
	}
	// country code followed by the trunk prefix
	if strings.HasPrefix(phoneNumber, countryCode+"0") {
		return countryCode + phoneNumber[len(countryCode)+1:]
	}
	return phoneNumber
}

// Connect connects to WhatsApp, printing a login QR code to the terminal
// when the device is not paired yet.
func (s *Service) Connect(ctx context.Context) error {
	if s.client.Store.ID != nil {
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	return s.login(ctx, s.client)
}

// qrLogin is the part of the client used to pair a new device.
type qrLogin interface {
	GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)
	Connect() error
}

// login pairs the device by QR code and returns once pairing finished.
func (s *Service) login(ctx context.Context, c qrLogin) error {
	qrChan, err := c.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get login QR channel: %w", err)
	}
	if err := c.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	last := ""
	for evt := range qrChan {
		last = evt.Event
		switch evt.Event {
		case whatsmeow.QRChannelSuccess.Event:
			s.log.Info().Msg("Device paired")
			return nil
		case whatsmeow.QRChannelEventError:
			return fmt.Errorf("pairing failed: %w", evt.Error)
		case whatsmeow.QRChannelEventCode:
			q, err := qrcode.New(evt.Code, qrcode.Medium)
			if err != nil {
				fmt.Printf("QR Code: %s\n", evt.Code)
				continue
			}
			fmt.Println("\n" + q.ToSmallString(false))
			fmt.Println("Scan the QR code above with WhatsApp (Settings > Linked Devices > Link a Device)")
		default:
			s.log.Info().Str("event", evt.Event).Msg("Login event")
		}
	}
	return fmt.Errorf("login did not complete: %s", last)
}

func (s *Service) Disconnect() {
	s.client.Disconnect()
}

// resolve returns the verified JID of a phone number.
func (s *Service) resolve(ctx context.Context, phoneNumber string) (types.JID, error) {
	phoneNumber = NormalizePhoneNumber(phoneNumber, s.cfg.DefaultCountryCode)

	resp, err := s.client.IsOnWhatsApp(ctx, []string{"+" + phoneNumber})
	if err != nil {
		return types.JID{}, fmt.Errorf("failed to verify number on WhatsApp: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return types.JID{}, fmt.Errorf("number %s is not registered on WhatsApp", phoneNumber)
	}

	s.log.Debug().Str("jid", resp[0].JID.String()).Str("phone", phoneNumber).Msg("Number verified")
	return resp[0].JID, nil
}

// SendMessage sends a text message.
func (s *Service) SendMessage(ctx context.Context, phoneNumber, message string) error {
	jid, err := s.resolve(ctx, phoneNumber)
	if err != nil {
		return err
	}
	sent, err := s.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(message)})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	s.log.Info().Str("id", sent.ID).Str("jid", jid.String()).Msg("Message sent")
	return nil
}

// SendImage uploads an image and sends it with a caption.
func (s *Service) SendImage(ctx context.Context, phoneNumber string, image []byte, mimetype, caption string) error {
	jid, err := s.resolve(ctx, phoneNumber)
	if err != nil {
		return err
	}

	up, err := s.client.Upload(ctx, image, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("failed to upload image: %w", err)
	}

	sent, err := s.client.SendMessage(ctx, jid, &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mimetype),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send image: %w", err)
	}
	s.log.Info().Str("id", sent.ID).Str("jid", jid.String()).Int("bytes", len(image)).Msg("Invitation sent")
	return nil
}

func (s *Service) eventHandler(evt interface{}) {
	switch evt.(type) {
	case *events.Connected:
		s.log.Info().Msg("Connected to WhatsApp")
	case *events.Disconnected:
		s.log.Info().Msg("Disconnected from WhatsApp")
	case *events.LoggedOut:
		s.log.Warn().Msg("Logged out from WhatsApp")
	}
}
