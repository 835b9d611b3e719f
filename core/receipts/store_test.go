package receipts

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"promoledger/core/types"
	"promoledger/crypto"
	"promoledger/native/promo"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "receipts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func redeemedReceipt(hash string, discount string) *types.Receipt {
	return &types.Receipt{
		Hash:   hash,
		Kind:   types.IxRedeemCoupon,
		Signer: crypto.BytesToAddress(make([]byte, crypto.AddressLength)),
		Status: types.ReceiptSuccess,
		Events: []types.Event{{
			Type: promo.EventTypeCouponRedeemed,
			Attributes: map[string]string{
				"merchant":       "m",
				"campaign":       "c",
				"campaignId":     "1",
				"categoryCode":   "7",
				"productCode":    "42",
				"couponIndex":    "0",
				"purchaseAmount": "100000",
				"discount":       discount,
				"serviceFee":     "100",
				"redeemedAt":     "1700000000",
			},
		}},
		AppliedAt: 1700000000,
	}
}

func TestAppendAndGet(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.Get(ctx, "0xmissing")
	require.ErrorIs(t, err, ErrNotFound)

	receipt := redeemedReceipt("0x01", "5000")
	require.NoError(t, store.Append(ctx, receipt))
	loaded, err := store.Get(ctx, "0x01")
	require.NoError(t, err)
	require.Equal(t, receipt, loaded)
}

func TestAppendReplacesFailedReceipt(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	failed := &types.Receipt{
		Hash:      "0x02",
		Kind:      types.IxRedeemCoupon,
		Status:    types.ReceiptFailed,
		Error:     "promo: campaign has already expired",
		ErrorCode: 6027,
		ErrorName: "CampaignExpired",
		Events:    []types.Event{},
	}
	require.NoError(t, store.Append(ctx, failed))
	loaded, err := store.Get(ctx, "0x02")
	require.NoError(t, err)
	require.False(t, loaded.Succeeded())
	require.Equal(t, uint32(6027), loaded.ErrorCode)
	require.Empty(t, loaded.Events)

	require.NoError(t, store.Append(ctx, redeemedReceipt("0x02", "10")))
	loaded, err = store.Get(ctx, "0x02")
	require.NoError(t, err)
	require.True(t, loaded.Succeeded())
	require.Len(t, loaded.Events, 1)

	events, err := store.Events(ctx, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestEventsPaging(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	for i, hash := range []string{"0xa", "0xb", "0xc"} {
		require.NoError(t, store.Append(ctx, redeemedReceipt(hash, string(rune('1'+i)))))
	}
	first, err := store.Events(ctx, promo.EventTypeCouponRedeemed, 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	rest, err := store.Events(ctx, promo.EventTypeCouponRedeemed, first[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "0xc", rest[0].ReceiptHash)

	none, err := store.Events(ctx, promo.EventTypeVaultClosed, 0, 10)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestExportRedemptions(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, store.Append(ctx, redeemedReceipt("0xa", "5000")))
	require.NoError(t, store.Append(ctx, redeemedReceipt("0xb", "2500")))

	path := filepath.Join(t.TempDir(), "redemptions.parquet")
	written, err := store.ExportRedemptions(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 2, written)

	file, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer file.Close()
	pr, err := reader.NewParquetReader(file, new(redemptionRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(2), pr.GetNumRows())
	rows := make([]redemptionRow, 2)
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, "0xa", rows[0].Receipt)
	require.Equal(t, uint64(5000), rows[0].Discount)
	require.Equal(t, uint64(2500), rows[1].Discount)
	require.Equal(t, uint16(42), rows[1].ProductCode)
	require.Equal(t, int64(1700000000), rows[1].RedeemedAt)
}

func TestRedemptionRowRejectsMalformedAttributes(t *testing.T) {
	evt := StoredEvent{Event: types.Event{Attributes: map[string]string{"campaignId": "x"}}}
	_, err := redemptionRowFrom(evt)
	require.Error(t, err)
}
