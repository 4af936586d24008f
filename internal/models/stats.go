package models

// StatusCounts holds raw customer counts for a location
type StatusCounts struct {
	Total    int
	Pending  int
	Sending  int
	Sent     int
	Failed   int
	Opened   int
	Clicked  int
	Reviewed int
}
