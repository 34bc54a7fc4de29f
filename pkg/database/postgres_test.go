package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/gym-auth-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "gym", Password: "pw", Name: "auth", SSLMode: "require"})
	assert.Equal(t, "host=db port=5433 user=gym password=pw dbname=auth sslmode=require", dsn)
}
