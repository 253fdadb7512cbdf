package redis

const keyPrefix = "wr:"

func seqKey(eventID string) string { return keyPrefix + "seq:" + eventID }
func ledgerKey(eventID string) string { return keyPrefix + "ledger:" + eventID }
func tokenKey(token string) string { return keyPrefix + "token:" + token }
func stateKey(token string) string { return keyPrefix + "state:" + token }
func exchangeKey(id string) string { return keyPrefix + "exchange:" + id }
func reservationKey(id string) string { return keyPrefix + "reservation:" + id }
func rateKey(key string) string { return keyPrefix + "rl:" + key }
func idempotencyKey(key string) string { return keyPrefix + "idemp:" + key }

const (
	eventsKey = keyPrefix + "events"
	leaseKey  = keyPrefix + "lease:scheduler"
)
