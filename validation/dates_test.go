package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDocumentDate(t *testing.T) {
	t.Run("valid date parses correctly", func(t *testing.T) {
		result, err := ParseDocumentDate("23 OCT 94")
		require.NoError(t, err)
		require.Equal(t, 1994, result.Year())
		require.Equal(t, time.October, result.Month())
		require.Equal(t, 23, result.Day())
	})

	t.Run("two digit year at or below 50 lands in the 2000s", func(t *testing.T) {
		result, err := ParseDocumentDate("01 JAN 30")
		require.NoError(t, err)
		require.Equal(t, 2030, result.Year())
	})

	t.Run("two digit year above 50 lands in the 1900s", func(t *testing.T) {
		result, err := ParseDocumentDate("01 JAN 51")
		require.NoError(t, err)
		require.Equal(t, 1951, result.Year())
	})

	t.Run("every month abbreviation parses", func(t *testing.T) {
		months := []string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}
		for i, m := range months {
			result, err := ParseDocumentDate("01 " + m + " 20")
			require.NoError(t, err)
			require.Equal(t, time.Month(i+1), result.Month())
		}
	})

	t.Run("unknown month abbreviation", func(t *testing.T) {
		_, err := ParseDocumentDate("01 XXX 20")
		require.ErrorIs(t, err, ErrInvalidDate)
	})

	t.Run("day that does not exist in month", func(t *testing.T) {
		_, err := ParseDocumentDate("31 FEB 24")
		require.ErrorIs(t, err, ErrInvalidDate)
	})

	t.Run("leap day parses only in leap years", func(t *testing.T) {
		_, err := ParseDocumentDate("29 FEB 24")
		require.NoError(t, err)

		_, err = ParseDocumentDate("29 FEB 23")
		require.ErrorIs(t, err, ErrInvalidDate)
	})

	t.Run("lowercase month fails the format gate", func(t *testing.T) {
		_, err := ParseDocumentDate("23 oct 94")
		require.ErrorIs(t, err, ErrInvalidDateFormat)
	})

	t.Run("single digit day fails the format gate", func(t *testing.T) {
		_, err := ParseDocumentDate("3 OCT 94")
		require.ErrorIs(t, err, ErrInvalidDateFormat)
	})

	t.Run("four digit year fails the format gate", func(t *testing.T) {
		_, err := ParseDocumentDate("23 OCT 1994")
		require.ErrorIs(t, err, ErrInvalidDateFormat)
	})

	t.Run("empty string fails the format gate", func(t *testing.T) {
		_, err := ParseDocumentDate("")
		require.ErrorIs(t, err, ErrInvalidDateFormat)
	})
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC)

	t.Run("past date is expired", func(t *testing.T) {
		require.True(t, IsExpired(now.AddDate(0, 0, -1), now))
	})

	t.Run("future date is not expired", func(t *testing.T) {
		require.False(t, IsExpired(now.AddDate(5, 0, 0), now))
	})
}
