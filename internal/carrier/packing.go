package carrier

import (
	"github.com/shopspring/decimal"

	"github.com/vorobeishop/storefront-backend/pkg/enums"
)

// bucket is one registered box size. Dimensions are centimeters.
type bucket struct {
	size     enums.PackageSize
	length   int
	width    int
	height   int
	maxItems int
}

// Bucket table ordered smallest to largest. maxItems is the regular-item
// capacity; bulky items follow their own pairing rules below.
var buckets = []bucket{
	{size: enums.PackageSizeS, length: 17, width: 12, height: 10, maxItems: 4},
	{size: enums.PackageSizeM, length: 30, width: 20, height: 10, maxItems: 10},
	{size: enums.PackageSizeL, length: 40, width: 30, height: 20, maxItems: 20},
	{size: enums.PackageSizeXL, length: 60, width: 40, height: 30, maxItems: 40},
}

// regularsWithBulky caps how many regular items ride along with one bulky
// item in an M box.
const regularsWithBulky = 6

// PackInput is the order-group summary the bucketing runs on. Counts and
// totals only; per-item detail is already folded into the weight.
type PackInput struct {
	BulkyCount       int
	RegularCount     int
	TotalWeightGrams int
	TotalPriceRubles int
}

// PackedPackage is one physical box of the shipment with its apportioned
// share of the group's cost and weight.
type PackedPackage struct {
	Size        enums.PackageSize
	Length      int
	Width       int
	Height      int
	Items       int
	WeightGrams int
	CostRubles  int
}

// BuildPackInput folds the shipment lines into the counts and totals the
// bucketing needs.
func BuildPackInput(items []ShipmentItem, totalPriceRubles int) PackInput {
	in := PackInput{TotalPriceRubles: totalPriceRubles}
	for _, item := range items {
		if item.Qty <= 0 {
			continue
		}
		if item.Bulky {
			in.BulkyCount += item.Qty
		} else {
			in.RegularCount += item.Qty
		}
		in.TotalWeightGrams += item.Qty * item.UnitWeightGrams
	}
	return in
}

// PackOrder splits an order group into shipment packages. Bulky items are
// paired into L boxes once no regular items remain, a single bulky item
// takes up to regularsWithBulky regular items into an M box, and leftover
// regular items fill the smallest bucket that holds them, escalating S
// through XL. Cost and weight are split across packages proportionally to
// item count, with the rounding remainder landing on the last package so
// the totals reconcile exactly. Identical inputs always yield identical
// packages.
func PackOrder(in PackInput) []PackedPackage {
	bulky := in.BulkyCount
	regular := in.RegularCount
	if bulky <= 0 && regular <= 0 {
		return nil
	}

	type slot struct {
		bucket bucket
		items  int
	}
	var slots []slot

	for bulky > 0 {
		switch {
		case regular > 0:
			take := regular
			if take > regularsWithBulky {
				take = regularsWithBulky
			}
			slots = append(slots, slot{bucket: bucketFor(enums.PackageSizeM), items: 1 + take})
			bulky--
			regular -= take
		case bulky >= 2:
			slots = append(slots, slot{bucket: bucketFor(enums.PackageSizeL), items: 2})
			bulky -= 2
		default:
			slots = append(slots, slot{bucket: bucketFor(enums.PackageSizeM), items: 1})
			bulky--
		}
	}

	for regular > 0 {
		b := smallestFitting(regular)
		take := regular
		if take > b.maxItems {
			take = b.maxItems
		}
		slots = append(slots, slot{bucket: b, items: take})
		regular -= take
	}

	counts := make([]int, len(slots))
	for i, s := range slots {
		counts[i] = s.items
	}
	costs := apportion(int64(in.TotalPriceRubles), counts)
	weights := apportion(int64(in.TotalWeightGrams), counts)

	packages := make([]PackedPackage, len(slots))
	for i, s := range slots {
		packages[i] = PackedPackage{
			Size:        s.bucket.size,
			Length:      s.bucket.length,
			Width:       s.bucket.width,
			Height:      s.bucket.height,
			Items:       s.items,
			WeightGrams: int(weights[i]),
			CostRubles:  int(costs[i]),
		}
	}
	return packages
}

func bucketFor(size enums.PackageSize) bucket {
	for _, b := range buckets {
		if b.size == size {
			return b
		}
	}
	return buckets[len(buckets)-1]
}

// smallestFitting picks the smallest bucket that holds count items, or XL
// when even that overflows.
func smallestFitting(count int) bucket {
	for _, b := range buckets {
		if count <= b.maxItems {
			return b
		}
	}
	return buckets[len(buckets)-1]
}

// apportion splits total across counts proportionally, flooring each share
// and assigning the remainder to the last entry.
func apportion(total int64, counts []int) []int64 {
	shares := make([]int64, len(counts))
	if len(counts) == 0 || total == 0 {
		return shares
	}

	var totalCount int64
	for _, c := range counts {
		totalCount += int64(c)
	}
	if totalCount <= 0 {
		return shares
	}

	totalDec := decimal.NewFromInt(total)
	countDec := decimal.NewFromInt(totalCount)
	var assigned int64
	for i, c := range counts[:len(counts)-1] {
		share := totalDec.Mul(decimal.NewFromInt(int64(c))).Div(countDec).Floor().IntPart()
		shares[i] = share
		assigned += share
	}
	shares[len(shares)-1] = total - assigned
	return shares
}
