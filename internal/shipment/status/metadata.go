package status

// Meta is the presentation contract for one status: label, color, ordering,
// and a bilingual description. Consumed by display layers only; nothing in
// the engine reads it back.
type Meta struct {
	Status        Status `json:"status"`
	LabelEN       string `json:"label_en"`
	LabelZH       string `json:"label_zh"`
	Color         string `json:"color"`
	Order         int    `json:"order"`
	DescriptionEN string `json:"description_en"`
	DescriptionZH string `json:"description_zh"`
}

var metadata = []Meta{
	{StatusPlanning, "Planning", "计划中", "#9ca3af", 10,
		"Booking is being arranged; no bill of lading or ETA yet.",
		"正在安排订舱，尚无提单或预计到港日。"},
	{StatusDelayed, "Delayed", "已延误", "#ef4444", 20,
		"Agreed shipping date has passed without a bill of lading.",
		"已超过约定船期，仍未取得提单。"},
	{StatusSailed, "Sailed", "已开船", "#3b82f6", 30,
		"Bill of lading issued; vessel under way toward the discharge port.",
		"提单已签发，船舶在途。"},
	{StatusAwaitingClearance, "Awaiting clearance", "待清关", "#f59e0b", 40,
		"ETA has arrived; customs formalities not yet completed.",
		"已到预计到港日，海关手续尚未完成。"},
	{StatusPendingTransport, "Pending transport", "待安排运输", "#8b5cf6", 50,
		"Customs cleared; inland transport not yet assigned.",
		"已清关，尚未安排内陆运输。"},
	{StatusLoadedToFinal, "Loaded to final", "发往目的仓", "#06b6d4", 60,
		"Customs cleared and transport assigned for final delivery.",
		"已清关并安排运输，发往目的仓。"},
	{StatusReceived, "Received", "已收货", "#22c55e", 70,
		"Warehouse confirmed physical receipt.",
		"仓库已确认实际收货。"},
	{StatusQualityIssue, "Quality issue", "质量问题", "#dc2626", 80,
		"Warehouse confirmed receipt and flagged quality issues.",
		"仓库确认收货并标记质量问题。"},
}

// Metadata returns the display table in numeric order.
func Metadata() []Meta {
	out := make([]Meta, len(metadata))
	copy(out, metadata)
	return out
}

// MetaFor looks up display metadata for one status.
func MetaFor(s Status) (Meta, bool) {
	for _, m := range metadata {
		if m.Status == s {
			return m, true
		}
	}
	return Meta{}, false
}
