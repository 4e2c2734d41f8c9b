package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/qmdoc/doccontrol/internal/document"
)

func TestWriteRegister(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := []document.Summary{
		{ID: "A01VA004", Title: "Cleaning", Type: document.TypeProcedure, Status: document.StatusPublished, Version: "2.0", OwnerID: "alice", UpdatedAt: now, NextReviewAt: &due},
		{ID: "QMH01", Title: "Manual", Type: document.TypeManual, Status: document.StatusDraft, Version: "1.0", OwnerID: "quinn", UpdatedAt: now},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRegister(&buf, rows, nil, now))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	got, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Next review", got[0][7])
	assert.Equal(t, []string{"A01VA004", "Cleaning", "Procedure", "PUBLISHED", "2.0", "alice", "2025-06-01 00:00", "2025-05-01", "yes"}, got[1])
	assert.Equal(t, "QM manual", got[2][2])
	assert.Equal(t, "no", got[2][8])
}

func TestWriteRegisterEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRegister(&buf, nil, nil, time.Now()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	got, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
