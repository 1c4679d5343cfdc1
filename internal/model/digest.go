package model

// DigestRequest is everything going to one recipient in one run.
type DigestRequest struct {
	Recipient string
	UserID    *int64
	Items     []ExpiringLicense
}

func (d *DigestRequest) LicenseIDs() []int64 {
	ids := make([]int64, 0, len(d.Items))
	for _, it := range d.Items {
		ids = append(ids, it.ID)
	}
	return ids
}
