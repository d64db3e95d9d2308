// Command kyc-records is a stand-in for the KYC data subsystem used in local
// development and end-to-end tests. Records live in memory.
package main

import (
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	addr := os.Getenv("KYC_RECORDS_ADDR")
	if addr == "" {
		addr = ":8090"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(newStore(), os.Getenv("KYC_RECORDS_API_KEY")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("kyc-records mock listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
