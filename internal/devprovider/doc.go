// Package devprovider implements a CPA authorization provider for local
// development and end-to-end tests.
//
// It supports dynamic client registration, client-mode tokens, device
// grants and polling. Device grants are approved or denied through
// POST /verify with the user code, which stands in for the web page a
// real provider would show. All state is kept in memory.
//
// Endpoints:
//
//	POST /register   {client_name, software_id, software_version}
//	POST /associate  {client_id, client_secret, domain}
//	POST /token      {grant_type, client_id, client_secret, domain, device_code}
//	POST /verify     {user_code, user_name, deny}
//	GET  /metrics    Prometheus metrics, when a registry is configured
package devprovider
