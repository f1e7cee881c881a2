package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	Transport       string        `env:"TRANSPORT,default=sim" validate:"oneof=sim websocket"`
	ChatServerURL   string        `env:"CHAT_SERVER_URL,default=ws://localhost:8080/ws" validate:"required"`
	UserID          string        `env:"USER_ID,default=customer-1" validate:"required"`
	Role            string        `env:"ROLE,default=customer" validate:"oneof=customer worker"`
	EchoDelay       time.Duration `env:"ECHO_DELAY,default=300ms"`
	ReplyDelay      time.Duration `env:"REPLY_DELAY,default=2s"`
	DefaultRoomID   string        `env:"DEFAULT_ROOM_ID,default=room-1" validate:"required"`
	DefaultRoomName string        `env:"DEFAULT_ROOM_NAME,default=Customer Support - Live Chat" validate:"required"`
	ForbiddenWords  string        `env:"FORBIDDEN_WORDS"`
	MaskCharacter   string        `env:"MASK_CHARACTER,default=*"`
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.MaskRune(); err != nil {
		return err
	}
	return nil
}

// Words splits the forbidden word list on ";" so words may contain
// spaces. An empty variable disables moderation.
func (c Config) Words() []string {
	if strings.TrimSpace(c.ForbiddenWords) == "" {
		return nil
	}
	var words []string
	for _, w := range strings.Split(c.ForbiddenWords, ";") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func (c Config) MaskRune() (rune, error) {
	r := []rune(c.MaskCharacter)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MASK_CHARACTER must be a single character, got %q",
			c.MaskCharacter,
		)
	}
	return r[0], nil
}
