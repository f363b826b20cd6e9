// Package main Payflow Server API
//
//	@title			Payflow Server API
//	@version		1.0
//	@description	Payment records and card payment confirmation against MercadoPago.
//
//	@host			localhost:8080
//	@BasePath		/
//
//	@tag.name			payments
//	@tag.description	Payment records and confirmation progress
//
//	@tag.name			webhooks
//	@tag.description	Gateway notifications
package main
