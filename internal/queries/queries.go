// Package queries holds the portfolio statements served by the HTTP API.
//
// Positional statements take adapter.Args, named ones adapter.NamedArgs with
// the keys listed next to them.
package queries

const (
	// FetchProfiles lists every profile.
	FetchProfiles = `SELECT * FROM public.profile ORDER BY id`

	// FetchProfileTransactions lists the transactions of one profile. Args: user id.
	FetchProfileTransactions = `SELECT * FROM public.asset_transaction
WHERE user_id = %s
ORDER BY date DESC`

	// FetchAllAssetData lists the full price history of one asset. Args: isin.
	FetchAllAssetData = `SELECT * FROM public.asset_data
WHERE asset_isin = %s`

	// FetchAllAssetTypes lists every asset type.
	FetchAllAssetTypes = `SELECT asset_type.id, asset_type.name
FROM asset_type
ORDER BY asset_type.id`

	// FetchAssetTypeByName resolves an asset type id. Named: asset_name.
	FetchAssetTypeByName = `SELECT asset_type.id
FROM asset_type
WHERE asset_type.name = %(asset_name)s
ORDER BY asset_type.id`

	// FetchProfileAssetTransactions joins transactions to their profile. Named: user_id.
	FetchProfileAssetTransactions = `SELECT
	asset_transaction.user_id,
	asset_transaction.asset_isin,
	asset_transaction.quantity,
	asset_transaction.price,
	asset_transaction.date
FROM public.asset_transaction AS asset_transaction
INNER JOIN public.profile AS profile
	ON asset_transaction.user_id = profile.id
WHERE asset_transaction.user_id = %(user_id)s
ORDER BY asset_transaction.date DESC`

	// FetchAssetDataByISIN returns the OHLC-style history of an asset. Named: asset_isin.
	FetchAssetDataByISIN = `SELECT
	asset_data.asset_isin,
	asset_data.date,
	asset_data.mid_close,
	asset_data.high,
	asset_data.low
FROM public.asset_data AS asset_data
INNER JOIN public.asset AS asset
	ON asset_data.asset_isin = asset.isin
WHERE asset_data.asset_isin = %(asset_isin)s
ORDER BY asset_data.date DESC`

	// FetchAssetTypesByProfile lists the asset types a profile holds. Named: user_id.
	FetchAssetTypesByProfile = `WITH user_assets AS (
	SELECT DISTINCT asset_type_id
	FROM asset
	INNER JOIN asset_transaction
		ON asset.isin = asset_transaction.asset_isin
	WHERE asset_transaction.user_id = %(user_id)s
)
SELECT asset_type.id, asset_type.name
FROM asset_type
INNER JOIN user_assets
	ON asset_type.id = user_assets.asset_type_id
ORDER BY asset_type.id`

	// FetchUsers lists users without their password hashes.
	FetchUsers = `SELECT id, name, creation_date FROM users ORDER BY id`

	// InsertAssetType creates an asset type. Named: name.
	InsertAssetType = `INSERT INTO asset_type (name) VALUES (%(name)s)`

	// InsertUser creates a user. Named: name, password_hash, email.
	InsertUser = `INSERT INTO users (name, password_hash, email)
VALUES (%(name)s, %(password_hash)s, %(email)s)`
)
