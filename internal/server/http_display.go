package server

import "fmt"

// displayServerInfo shows server configuration information
func (s *Server) displayServerInfo() {
	s.displayEndpoints()
	s.displayAuthInfo()
	s.displayRequestLimitInfo()
	s.displayRateLimitInfo()
}

func (s *Server) displayEndpoints() {
	fmt.Println("Available endpoints:")
	fmt.Println("  GET  /health                      - Health check")
	fmt.Println("  GET  /stats                       - Server statistics")
	fmt.Println("  POST /v1/resumes                  - Create a resume job (?run=async to analyze)")
	fmt.Println("  GET  /v1/resumes?ownerId=         - List an owner's resumes")
	fmt.Println("  GET  /v1/resumes/{id}             - Resume status and analysis")
	fmt.Println("  POST /v1/resumes/{id}/analyze     - Trigger analysis")
	if s.Queue != nil {
		fmt.Println("Analyses run on queue workers")
	} else {
		fmt.Println("Analyses run in-process")
	}
}

func (s *Server) displayAuthInfo() {
	if len(s.APIKeys) > 0 {
		fmt.Printf("API authentication: ENABLED (%d keys configured)\n", len(s.APIKeys))
		fmt.Println("Include 'X-API-Key: <your-key>' header in requests to /v1/resumes")
	} else {
		fmt.Println("API authentication: DISABLED (no API keys configured)")
		fmt.Println("WARNING: API endpoints are publicly accessible!")
	}
}

func (s *Server) displayRequestLimitInfo() {
	if s.MaxRequestSize > 0 {
		fmt.Printf("Request size limit: %d bytes (%.1f MB)\n", s.MaxRequestSize, float64(s.MaxRequestSize)/(1024*1024))
	} else {
		fmt.Println("Request size limit: DISABLED")
	}
}

func (s *Server) displayRateLimitInfo() {
	if s.RateLimit != nil && s.RateLimit.Enabled {
		fmt.Printf("Rate limiting: ENABLED (%d requests/min, burst: %d)\n",
			s.RateLimit.RequestsPerMin, s.RateLimit.BurstCapacity)
		if s.RateLimit.ByAPIKey {
			fmt.Println("  - Per API key rate limiting enabled")
		}
		if s.RateLimit.ByIP {
			fmt.Println("  - Per IP address rate limiting enabled")
		}
	} else {
		fmt.Println("Rate limiting: DISABLED")
	}
	if s.ScanLimit != nil && s.ScanLimit.Enabled {
		fmt.Printf("Scan limit: %d per owner every %s\n", s.ScanLimit.PerOwner, s.ScanLimit.Window)
	}
}
