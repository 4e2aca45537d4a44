package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithParseTime(t *testing.T) {
	assert.Equal(t, "u:p@tcp(db:3306)/friends?parseTime=true&loc=UTC", withParseTime("u:p@tcp(db:3306)/friends"))
	assert.Equal(t, "u:p@tcp(db)/f?charset=utf8mb4&parseTime=true&loc=UTC", withParseTime("u:p@tcp(db)/f?charset=utf8mb4"))
	assert.Equal(t, "u:p@tcp(db)/f?parseTime=false", withParseTime("u:p@tcp(db)/f?parseTime=false"))
}
