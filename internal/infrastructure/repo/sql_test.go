package repo

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestPlaceholderRebinding(t *testing.T) {
	pg := newSQLRepo(nil, dialect{name: "postgres", numbered: true})
	assert.Equal(t, "SELECT 1 FROM orders WHERE id=$1 AND status IN ($2,$3)",
		pg.q("SELECT 1 FROM orders WHERE id=? AND status IN ("+placeholders(2)+")"))

	lite := newSQLRepo(nil, dialect{name: "sqlite"})
	assert.Equal(t, "id=? AND version=?", lite.q("id=? AND version=?"))
}

func TestUniqueViolationDetection(t *testing.T) {
	assert.True(t, postgresUnique(&pq.Error{Code: "23505"}))
	assert.False(t, postgresUnique(&pq.Error{Code: "23503"}))
	assert.False(t, postgresUnique(errors.New("boom")))
	assert.False(t, sqliteUnique(errors.New("boom")))
}
