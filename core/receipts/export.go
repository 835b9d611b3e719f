package receipts

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"promoledger/native/promo"
)

const exportPageSize = 500

type redemptionRow struct {
	Receipt        string `parquet:"name=receipt, type=UTF8"`
	Merchant       string `parquet:"name=merchant, type=UTF8"`
	Campaign       string `parquet:"name=campaign, type=UTF8"`
	CampaignID     uint64 `parquet:"name=campaign_id, type=UINT_64"`
	CategoryCode   uint16 `parquet:"name=category_code, type=UINT_16"`
	ProductCode    uint16 `parquet:"name=product_code, type=UINT_16"`
	CouponIndex    uint64 `parquet:"name=coupon_index, type=UINT_64"`
	PurchaseAmount uint64 `parquet:"name=purchase_amount, type=UINT_64"`
	Discount       uint64 `parquet:"name=discount, type=UINT_64"`
	ServiceFee     uint64 `parquet:"name=service_fee, type=UINT_64"`
	RedeemedAt     int64  `parquet:"name=redeemed_at, type=INT64"`
}

func redemptionRowFrom(evt StoredEvent) (*redemptionRow, error) {
	attrs := evt.Attributes
	row := &redemptionRow{
		Receipt:  evt.ReceiptHash,
		Merchant: attrs["merchant"],
		Campaign: attrs["campaign"],
	}
	var err error
	parseU64 := func(key string) uint64 {
		if err != nil {
			return 0
		}
		var v uint64
		v, err = strconv.ParseUint(attrs[key], 10, 64)
		if err != nil {
			err = fmt.Errorf("event %d: %s: %w", evt.ID, key, err)
		}
		return v
	}
	row.CampaignID = parseU64("campaignId")
	row.CategoryCode = uint16(parseU64("categoryCode"))
	row.ProductCode = uint16(parseU64("productCode"))
	row.CouponIndex = parseU64("couponIndex")
	row.PurchaseAmount = parseU64("purchaseAmount")
	row.Discount = parseU64("discount")
	row.ServiceFee = parseU64("serviceFee")
	row.RedeemedAt = evt.AppliedAt
	if raw, ok := attrs["redeemedAt"]; ok && err == nil {
		row.RedeemedAt, err = strconv.ParseInt(raw, 10, 64)
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ExportRedemptions writes every recorded redemption to a parquet file at
// path for merchant analytics and returns the number of rows written.
func (s *Store) ExportRedemptions(ctx context.Context, path string) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("receipts: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(redemptionRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("receipts: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	var cursor int64
	for {
		page, err := s.Events(ctx, promo.EventTypeCouponRedeemed, cursor, exportPageSize)
		if err != nil {
			file.Close()
			return written, err
		}
		for _, evt := range page {
			row, err := redemptionRowFrom(evt)
			if err != nil {
				file.Close()
				return written, err
			}
			if err := pw.Write(*row); err != nil {
				file.Close()
				return written, fmt.Errorf("receipts: write row: %w", err)
			}
			written++
			cursor = evt.ID
		}
		if len(page) < exportPageSize {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("receipts: finish parquet: %w", err)
	}
	return written, file.Close()
}
