package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func entityHandlers() repository.ModelHandlers[*entityRecord] {
	return repository.ModelHandlers[*entityRecord]{
		NewRecord: func() *entityRecord {
			return &entityRecord{}
		},
		GetID: func(record *entityRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *entityRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "key_path"
		},
		GetIdentifierValue: func(record *entityRecord) string {
			if record == nil {
				return ""
			}
			return record.KeyPath
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
