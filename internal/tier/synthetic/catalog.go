package synthetic

// template is one catalog entry plausible records are derived from. The
// catalog is deliberately static: identical inputs must yield identical
// records across runs and processes.
type template struct {
	title    string
	category string
	price    float64
	original float64
	sales    int
	rating   float64
	trending bool
}

var catalog = []template{
	{"Wireless Bluetooth Earbuds", "electronics", 24.99, 49.99, 18200, 4.5, true},
	{"Magnetic Phone Mount", "electronics", 11.49, 0, 9400, 4.3, false},
	{"LED Strip Lights 5m", "home", 13.99, 21.99, 22500, 4.4, true},
	{"Portable Mini Blender", "kitchen", 19.99, 34.99, 7600, 4.2, false},
	{"Resistance Bands Set", "sports", 15.49, 0, 12800, 4.6, false},
	{"Pet Grooming Glove", "pets", 7.99, 12.99, 15300, 4.1, true},
	{"Posture Corrector Brace", "health", 16.99, 27.99, 6100, 3.9, false},
	{"Car Trunk Organizer", "automotive", 22.49, 0, 4800, 4.4, false},
	{"Silicone Baking Mat Set", "kitchen", 9.99, 15.99, 8900, 4.7, false},
	{"Kids Drawing Tablet", "toys", 12.99, 19.99, 16700, 4.5, true},
	{"Memory Foam Seat Cushion", "home", 25.99, 39.99, 5400, 4.3, false},
	{"UV Phone Sanitizer Box", "electronics", 29.99, 54.99, 3200, 4.0, false},
	{"Collapsible Water Bottle", "sports", 13.49, 0, 7100, 4.2, false},
	{"Anti-Theft Laptop Backpack", "bags", 35.99, 59.99, 9800, 4.6, true},
	{"Galaxy Star Projector", "home", 27.99, 45.99, 20100, 4.4, true},
	{"Stainless Steel Watch Band", "accessories", 14.99, 0, 4300, 4.3, false},
	{"Yoga Mat Non-Slip", "sports", 21.99, 32.99, 11200, 4.5, false},
	{"Electric Milk Frother", "kitchen", 8.99, 14.99, 13600, 4.1, false},
	{"Cat Tunnel Toy", "pets", 10.99, 17.99, 6900, 4.2, false},
	{"Smart Body Scale", "health", 23.99, 38.99, 8400, 4.4, false},
	{"Ring Light with Tripod", "electronics", 18.99, 31.99, 14900, 4.3, true},
	{"Travel Jewelry Organizer", "accessories", 12.49, 0, 3700, 4.5, false},
	{"Door Draft Stopper", "home", 9.49, 0, 5200, 4.0, false},
	{"Insulated Lunch Bag", "bags", 11.99, 18.99, 7800, 4.2, false},
}
