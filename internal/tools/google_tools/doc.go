// Package google_tools provides the MCP tools that connect Google accounts.
//
// The OAuth flow:
//  1. A calendar tool fails for an account without a token and names these tools
//  2. google_get_auth_url returns the consent URL for the account
//  3. The user authorizes Calendar access and copies the code
//  4. google_save_auth_code exchanges the code and stores the token
//
// Tokens are refreshed automatically afterwards. google_list_accounts shows
// which configured accounts are connected.
package google_tools
