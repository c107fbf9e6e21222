package expr

import "strings"

// reservedWords is the subset of DynamoDB's reserved word list that shows
// up in practice as attribute names. Identifiers on this list must be
// referenced through an expression attribute name placeholder.
var reservedWords = map[string]struct{}{
	"ABORT": {}, "ABSOLUTE": {}, "ACTION": {}, "ADD": {}, "ALL": {},
	"AND": {}, "ANY": {}, "AS": {}, "ASC": {}, "ATTRIBUTE": {},
	"AVG": {}, "BATCH": {}, "BEGIN": {}, "BETWEEN": {}, "BINARY": {},
	"BOOLEAN": {}, "BOTH": {}, "BY": {}, "CASE": {}, "CAST": {},
	"COLUMN": {}, "COMMENT": {}, "COMMIT": {}, "CONDITION": {},
	"CONNECT": {}, "CONNECTION": {}, "COUNT": {},
	"CREATE": {}, "CURRENT": {}, "DATA": {}, "DATE": {}, "DAY": {},
	"DELETE": {}, "DESC": {}, "DROP": {}, "DYNAMO": {}, "EACH": {},
	"ELSE": {}, "END": {}, "EQ": {}, "EXISTS": {}, "EXPLAIN": {},
	"FALSE": {}, "FIRST": {}, "FOR": {}, "FORMAT": {}, "FROM": {},
	"FUNCTION": {}, "GE": {}, "GET": {}, "GLOB": {}, "GROUP": {},
	"GT": {}, "HASH": {}, "HAVE": {}, "HAVING": {}, "HOUR": {},
	"IF": {}, "IN": {}, "INDEX": {}, "INSERT": {}, "INT": {},
	"INTEGER": {}, "INTO": {}, "IS": {}, "ITEM": {}, "ITEMS": {},
	"JOIN": {}, "KEY": {}, "KEYS": {}, "LAST": {}, "LE": {},
	"LEFT": {}, "LEVEL": {}, "LIKE": {}, "LIMIT": {}, "LIST": {},
	"LOCAL": {}, "LONG": {}, "LT": {}, "MAP": {}, "MAX": {},
	"MEMBER": {}, "MERGE": {}, "MIN": {}, "MINUS": {}, "MINUTE": {},
	"MONTH": {}, "NAME": {}, "NAMES": {}, "NE": {}, "NEXT": {},
	"NOT": {}, "NULL": {}, "NUMBER": {}, "OF": {}, "OFFSET": {},
	"ON": {}, "OR": {}, "ORDER": {}, "OTHER": {}, "OUT": {},
	"PARTITION": {}, "PERCENT": {}, "POSITION": {}, "PRIMARY": {},
	"PRIVATE": {}, "PUBLIC": {}, "QUERY": {}, "RANGE": {}, "RANK": {},
	"READ": {}, "RELATIVE": {}, "REMOVE": {}, "RENAME": {},
	"REPLACE": {}, "RESULT": {}, "RETURN": {}, "RIGHT": {}, "ROLE": {},
	"ROLLBACK": {}, "ROW": {}, "ROWS": {}, "SECOND": {}, "SELECT": {},
	"SESSION": {}, "SET": {}, "SIZE": {}, "SOME": {}, "SOURCE": {},
	"SPACE": {}, "STATE": {}, "STATUS": {}, "STORE": {}, "SUM": {},
	"TABLE": {}, "THEN": {}, "TIME": {}, "TIMESTAMP": {}, "TO": {},
	"TOTAL": {}, "TRUE": {}, "TTL": {}, "TYPE": {}, "UNIQUE": {},
	"UNIT": {}, "UPDATE": {}, "USER": {}, "USING": {}, "UUID": {},
	"VALUE": {}, "VALUES": {}, "VIEW": {}, "WHEN": {}, "WHERE": {},
	"WITH": {}, "YEAR": {},
}

// isReserved reports whether a bare identifier collides with the reserved
// word list.
func isReserved(word string) bool {
	_, ok := reservedWords[strings.ToUpper(word)]
	return ok
}
