package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testReceipt = "79927398713"

func TestValidReceipt(t *testing.T) {
	assert.True(t, ValidReceipt(testReceipt))
	assert.False(t, ValidReceipt("79927398710"))
	assert.False(t, ValidReceipt("not-a-number"))
	assert.False(t, ValidReceipt(""))
}

func TestService_GetPurchase(t *testing.T) {
	t.Run("settled purchase", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/purchases/"+testReceipt, r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(&GetPurchaseResponse{
				Receipt: testReceipt,
				Status:  StatusSettled,
				Credits: 5,
			})
		}))
		defer srv.Close()

		svc, err := NewService(srv.URL)
		require.NoError(t, err)

		out := &GetPurchaseResponse{}
		err = svc.GetPurchase(context.Background(), &GetPurchaseRequest{Receipt: testReceipt}, out)
		require.NoError(t, err)
		assert.Equal(t, StatusSettled, out.Status)
		assert.Equal(t, int64(5), out.Credits)
	})

	t.Run("rejects an invalid receipt without calling the provider", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("provider must not be called")
		}))
		defer srv.Close()

		svc, err := NewService(srv.URL)
		require.NoError(t, err)

		err = svc.GetPurchase(context.Background(), &GetPurchaseRequest{Receipt: "12345"}, &GetPurchaseResponse{})
		assert.Error(t, err)
	})

	t.Run("provider error surfaces as RemoteError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unknown receipt", http.StatusNotFound)
		}))
		defer srv.Close()

		svc, err := NewService(srv.URL)
		require.NoError(t, err)

		err = svc.GetPurchase(context.Background(), &GetPurchaseRequest{Receipt: testReceipt}, &GetPurchaseResponse{})
		require.Error(t, err)

		remoteErr := &RemoteError{}
		require.ErrorAs(t, err, &remoteErr)
		assert.Equal(t, http.StatusNotFound, remoteErr.StatusCode)
	})

	t.Run("breaker opens after consecutive failures", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusInternalServerError)
		}))
		defer srv.Close()

		svc, err := NewService(srv.URL)
		require.NoError(t, err)

		for i := 0; i < 6; i++ {
			err = svc.GetPurchase(context.Background(), &GetPurchaseRequest{Receipt: testReceipt}, &GetPurchaseResponse{})
			require.Error(t, err)
		}

		err = svc.GetPurchase(context.Background(), &GetPurchaseRequest{Receipt: testReceipt}, &GetPurchaseResponse{})
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	})
}

func TestService_ListSettled(t *testing.T) {
	since := time.Now().Add(-time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/purchases", r.URL.Path)
		assert.Equal(t, "SETTLED", r.URL.Query().Get("status"))
		assert.NotEmpty(t, r.URL.Query().Get("since"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&ListSettledResponse{
			Purchases: []SettledPurchase{
				{Receipt: testReceipt, AccountID: "11111111-1111-4111-8111-111111111111", Credits: 5},
			},
		})
	}))
	defer srv.Close()

	svc, err := NewService(srv.URL)
	require.NoError(t, err)

	out := &ListSettledResponse{}
	err = svc.ListSettled(context.Background(), since, out)
	require.NoError(t, err)
	require.Len(t, out.Purchases, 1)
	assert.Equal(t, testReceipt, out.Purchases[0].Receipt)
}
